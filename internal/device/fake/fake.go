// Package fake provides in-memory devices for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plus-control/plusd/internal/device"
)

// Scanner is a fake imaging device: it answers parameter queries, captures
// images and has a connection lifecycle.
type Scanner struct {
	mu sync.Mutex

	id         string
	params     map[string]string
	image      []byte
	connected  bool
	errorType  string
	delay      time.Duration
	queries    int
	panicValue any
}

// NewScanner creates a connected-on-demand fake scanner with Depth and Gain.
func NewScanner(id string) *Scanner {
	return &Scanner{
		id: id,
		params: map[string]string{
			"Depth": "60",
			"Gain":  "50",
		},
		image: []byte("fake-image"),
	}
}

func (s *Scanner) ID() string   { return s.id }
func (s *Scanner) Type() string { return "fake-scanner" }

// Connect marks the scanner connected.
func (s *Scanner) Connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.simulatedError(); err != nil {
		return err
	}
	s.connected = true
	return nil
}

// Disconnect marks the scanner disconnected.
func (s *Scanner) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	return nil
}

// ParameterNames returns the configured parameter names, sorted.
func (s *Scanner) ParameterNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.params))
	for name := range s.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParameterAnswers returns the requested values plus DeviceId.
func (s *Scanner) ParameterAnswers(ctx context.Context, names []string) (map[string]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries++
	if s.panicValue != nil {
		panic(s.panicValue)
	}
	if err := s.simulatedError(); err != nil {
		return nil, err
	}

	answers := map[string]string{"DeviceId": s.id}
	for _, name := range names {
		v, ok := s.params[name]
		if !ok {
			return nil, fmt.Errorf("UNKNOWN_PARAMETER: %s", name)
		}
		answers[name] = v
	}
	return answers, nil
}

// CaptureImage returns the configured image bytes.
func (s *Scanner) CaptureImage(ctx context.Context) (*device.Image, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.simulatedError(); err != nil {
		return nil, err
	}
	return &device.Image{
		Format:   "PNG",
		Captured: time.Now(),
		Data:     append([]byte(nil), s.image...),
	}, nil
}

// SetParameter sets or adds one parameter value.
func (s *Scanner) SetParameter(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = value
}

// SetDelay makes queries and captures take at least d.
func (s *Scanner) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetErrorSimulation makes every operation fail with the given code token.
func (s *Scanner) SetErrorSimulation(errorType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorType = errorType
}

// DisableErrorSimulation clears SetErrorSimulation.
func (s *Scanner) DisableErrorSimulation() {
	s.SetErrorSimulation("")
}

// SetPanic makes the next parameter query panic with v.
func (s *Scanner) SetPanic(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicValue = v
}

// Connected reports the connection state.
func (s *Scanner) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Queries returns how many parameter queries were answered or attempted.
func (s *Scanner) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *Scanner) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *Scanner) simulatedError() error {
	if s.errorType == "" {
		return nil
	}
	return fmt.Errorf("%s: simulated error", s.errorType)
}

// Navigator is a fake navigation server exporting exams and receiving text.
type Navigator struct {
	mu sync.Mutex

	id          string
	patientName string
	patientID   string
	texts       []string
	failExam    bool
}

// NewNavigator creates a fake navigation server.
func NewNavigator(id, patientName string) *Navigator {
	return &Navigator{id: id, patientName: patientName, patientID: "P-0001"}
}

func (n *Navigator) ID() string   { return n.id }
func (n *Navigator) Type() string { return "fake-navigator" }

// ExamData reports an exam exported under outputDir.
func (n *Navigator) ExamData(ctx context.Context, outputDir string) (*device.Exam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failExam {
		return nil, fmt.Errorf("UNAVAILABLE: exam export failed")
	}
	return &device.Exam{
		PatientName:    n.patientName,
		PatientID:      n.patientID,
		ImageDirectory: outputDir + "/" + n.patientID,
		Volume:         &device.Image{Format: "DICOM", Captured: time.Now()},
	}, nil
}

// RegistrationData always succeeds.
func (n *Navigator) RegistrationData(ctx context.Context) error {
	return ctx.Err()
}

// ReceiveText records text and echoes it back.
func (n *Navigator) ReceiveText(ctx context.Context, text string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.texts = append(n.texts, text)
	return text, nil
}

// Texts returns the texts received so far.
func (n *Navigator) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

// SetExamFailure makes ExamData fail.
func (n *Navigator) SetExamFailure(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failExam = fail
}

// Plain is a device with no capabilities beyond identity.
type Plain struct {
	id  string
	typ string
}

// NewPlain creates a capability-less device.
func NewPlain(id, typ string) *Plain {
	return &Plain{id: id, typ: typ}
}

func (p *Plain) ID() string   { return p.id }
func (p *Plain) Type() string { return p.typ }
