package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-device replay ring capacity.
const DefaultBufferSize = 50

const globalDevice = "global"

// Event is one telemetry event.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	Type      string         `json:"type"`
	Device    string         `json:"device,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"ts"`
}

// Subscription receives events for one device, or for every device when
// Device is empty.
type Subscription struct {
	ID     string
	Device string
	Events <-chan Event

	events  chan Event
	hub     *Hub
	once    sync.Once
	dropped atomic.Int64
}

// Close unsubscribes and closes the Events channel.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
}

// Dropped returns how many events were skipped because the subscriber was slow.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Hub fans events out to subscribers with per-device buffering.
//
// Lock ordering: h.mu, then EventBuffer.mu.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	deviceIDs map[string]int64
	buffers   map[string]*EventBuffer
	capacity  int
	nextSub   int64
	stopped   bool
}

// NewHub creates a hub keeping capacity events per device.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Hub{
		subs:      make(map[string]*Subscription),
		deviceIDs: make(map[string]int64),
		buffers:   make(map[string]*EventBuffer),
		capacity:  capacity,
	}
}

// Subscribe registers a subscriber. When lastID is positive, buffered events
// of device newer than lastID are delivered first.
func (h *Hub) Subscribe(device string, lastID int64) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, fmt.Errorf("telemetry hub stopped")
	}

	h.nextSub++
	ch := make(chan Event, h.capacity+100)
	sub := &Subscription{
		ID:     fmt.Sprintf("sub_%d", h.nextSub),
		Device: device,
		Events: ch,
		events: ch,
		hub:    h,
	}

	if lastID > 0 && device != "" {
		if buf, ok := h.buffers[device]; ok {
			for _, e := range buf.GetEventsAfter(lastID) {
				ch <- e
			}
		}
	}

	h.subs[sub.ID] = sub
	return sub, nil
}

// Publish assigns the event an id and timestamp, buffers it when it belongs
// to a device and offers it to every matching subscriber without blocking.
func (h *Hub) Publish(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return fmt.Errorf("telemetry hub stopped")
	}
	// ids are taken under h.mu so buffer order matches id order
	if event.ID == 0 {
		event.ID = h.nextEventID(event.Device)
	}
	if event.Device != "" {
		buf, ok := h.buffers[event.Device]
		if !ok {
			buf = NewEventBuffer(h.capacity)
			h.buffers[event.Device] = buf
		}
		buf.AddEvent(event)
	}

	// sends happen under the lock so Close cannot race a send
	for _, sub := range h.subs {
		if sub.Device != "" && sub.Device != event.Device {
			continue
		}
		select {
		case sub.events <- event:
		default:
			sub.dropped.Add(1)
		}
	}
	h.mu.Unlock()

	return nil
}

// PublishDevice publishes an event for a specific device.
func (h *Hub) PublishDevice(device string, event Event) error {
	event.Device = device
	return h.Publish(event)
}

// Buffered returns the events currently held for device.
func (h *Hub) Buffered(device string) []Event {
	h.mu.RLock()
	buf, ok := h.buffers[device]
	h.mu.RUnlock()

	if !ok {
		return nil
	}
	return buf.GetEventsAfter(0)
}

// Stop closes every subscription. Later publishes fail.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true
	for id, sub := range h.subs {
		sub.once.Do(func() { close(sub.events) })
		delete(h.subs, id)
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		sub.once.Do(func() { close(sub.events) })
		delete(h.subs, id)
	}
}

// nextEventID returns the next monotonic event id for a device. The caller
// holds h.mu.
func (h *Hub) nextEventID(device string) int64 {
	if device == "" {
		device = globalDevice
	}
	h.deviceIDs[device]++
	return h.deviceIDs[device]
}

// EventBuffer is a bounded ring of events for one device.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent appends an event, dropping the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns the buffered events with an id above lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
