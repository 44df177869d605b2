package device

import (
	"context"
	"time"
)

// Device is anything held in the inventory.
type Device interface {
	ID() string
	Type() string
}

// Connector is implemented by devices with a connection lifecycle.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// ParameterQuerier answers imaging parameter queries.
type ParameterQuerier interface {
	Device

	// ParameterNames lists the parameter names the device can answer.
	ParameterNames() []string

	// ParameterAnswers returns the current value of each requested name.
	ParameterAnswers(ctx context.Context, names []string) (map[string]string, error)
}

// ImageSource produces images on demand.
type ImageSource interface {
	Device
	CaptureImage(ctx context.Context) (*Image, error)
}

// TextReceiver accepts free text from a client and may reply.
type TextReceiver interface {
	Device
	ReceiveText(ctx context.Context, text string) (string, error)
}

// ExamSource is a navigation server that exports patient exams.
type ExamSource interface {
	Device
	ExamData(ctx context.Context, outputDir string) (*Exam, error)
	RegistrationData(ctx context.Context) error
}

// Image is an opaque captured image. Pixels are not decoded here.
type Image struct {
	Format    string    `json:"format"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Timestamp uint32    `json:"timestamp,omitempty"`
	Captured  time.Time `json:"captured"`
	Data      []byte    `json:"data"`
}

// Exam describes an exported exam.
type Exam struct {
	PatientName    string `json:"patientName"`
	PatientID      string `json:"patientId"`
	ImageDirectory string `json:"imageDirectory"`
	Volume         *Image `json:"volume,omitempty"`
}

// Status is the connection state of one inventory entry.
type Status struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Connected bool      `json:"connected"`
	LastError string    `json:"lastError,omitempty"`
	LastSeen  time.Time `json:"lastSeen,omitempty"`
}
