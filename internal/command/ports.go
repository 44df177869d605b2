package command

import (
	"context"
	"errors"

	"github.com/plus-control/plusd/internal/audit"
	"github.com/plus-control/plusd/internal/device"
	"github.com/plus-control/plusd/internal/telemetry"
)

// DeviceCollection is the read-only view of the device inventory handed to
// Execute. Commands must not keep it.
type DeviceCollection interface {
	Device(id string) (device.Device, bool)
	Devices() []device.Device
}

// AuditLogger records executed and rejected commands.
type AuditLogger interface {
	LogCommand(ctx context.Context, e audit.Entry)
}

// Publisher receives command lifecycle events.
type Publisher interface {
	PublishDevice(device string, event telemetry.Event) error
}

// Compile-time assertions that the concrete collaborators fit.
var (
	_ DeviceCollection = (*device.Collection)(nil)
	_ AuditLogger      = (*audit.Logger)(nil)
	_ AuditLogger      = (*audit.Journal)(nil)
	_ Publisher        = (*telemetry.Hub)(nil)
)

var (
	// ErrUnknownCommand indicates the requested command name is not registered.
	ErrUnknownCommand = errors.New("UNKNOWN_COMMAND")

	// ErrMalformedCommand indicates command text that could not be parsed into
	// valid parameters.
	ErrMalformedCommand = errors.New("MALFORMED_COMMAND")

	// ErrDeviceNotFound indicates the target device could not be resolved.
	ErrDeviceNotFound = errors.New("DEVICE_NOT_FOUND")

	// ErrWrongDeviceType indicates the target device lacks the required capability.
	ErrWrongDeviceType = errors.New("WRONG_DEVICE_TYPE")
)

// errorCode maps an execution error to the code recorded in the audit trail.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range []error{
		ErrUnknownCommand,
		ErrMalformedCommand,
		ErrDeviceNotFound,
		ErrWrongDeviceType,
		device.ErrInvalidParameter,
		device.ErrBusy,
		device.ErrUnavailable,
		device.ErrInternal,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return device.ErrInternal.Error()
}
