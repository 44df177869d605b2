package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plus-control/plusd/internal/monitoring"
)

type entry struct {
	dev    Device
	status Status
}

// Collection is the ordered device inventory. Order is insertion order and
// decides which device auto-selection picks.
type Collection struct {
	mu      sync.RWMutex
	order   []*entry
	devices map[string]*entry
}

// NewCollection creates an empty inventory.
func NewCollection() *Collection {
	return &Collection{
		devices: make(map[string]*entry),
	}
}

// Add appends a device. Ids must be unique.
func (c *Collection) Add(d Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := d.ID()
	if id == "" {
		return fmt.Errorf("device id is required")
	}
	if _, exists := c.devices[id]; exists {
		return fmt.Errorf("device %s already exists", id)
	}

	e := &entry{dev: d, status: Status{ID: id, Type: d.Type()}}
	if _, ok := d.(Connector); !ok {
		e.status.Connected = true
	}
	c.order = append(c.order, e)
	c.devices[id] = e
	return nil
}

// Device returns the device with the given id.
func (c *Collection) Device(id string) (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.devices[id]
	if !ok {
		return nil, false
	}
	return e.dev, true
}

// Devices returns all devices in inventory order.
func (c *Collection) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Device, 0, len(c.order))
	for _, e := range c.order {
		out = append(out, e.dev)
	}
	return out
}

// Len returns the number of devices.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Connect connects every Connector in order, each bounded by timeout.
// Failures are recorded in the status and joined into the returned error;
// the remaining devices are still connected.
func (c *Collection) Connect(ctx context.Context, timeout time.Duration) error {
	var errs []error
	for _, d := range c.Devices() {
		conn, ok := d.(Connector)
		if !ok {
			continue
		}

		cctx := ctx
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := conn.Connect(cctx)
		cancel()

		if err != nil {
			err = Normalize(err, nil, d.Type())
			monitoring.Logf("device: connect %s failed: %v", d.ID(), err)
			errs = append(errs, fmt.Errorf("connect %s: %w", d.ID(), err))
		} else {
			monitoring.Logf("device: %s connected", d.ID())
		}
		c.setConnected(d.ID(), err == nil, err)
	}
	return errors.Join(errs...)
}

// Disconnect disconnects every connected Connector in reverse order.
func (c *Collection) Disconnect(ctx context.Context) error {
	devices := c.Devices()
	var errs []error
	for i := len(devices) - 1; i >= 0; i-- {
		conn, ok := devices[i].(Connector)
		if !ok || !c.connected(devices[i].ID()) {
			continue
		}
		err := conn.Disconnect(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", devices[i].ID(), err))
		}
		c.setConnected(devices[i].ID(), false, err)
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of every entry's connection state.
func (c *Collection) Status() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.order))
	for _, e := range c.order {
		out = append(out, e.status)
	}
	return out
}

func (c *Collection) connected(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.devices[id]
	return ok && e.status.Connected
}

func (c *Collection) setConnected(id string, connected bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.devices[id]
	if !ok {
		return
	}
	e.status.Connected = connected
	e.status.LastSeen = time.Now()
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
}
