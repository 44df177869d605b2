package command

import (
	"context"

	"github.com/beevik/etree"
)

// Command is one executable unit of work.
//
// A Command is created by cloning a registered prototype, configured once with
// ReadConfiguration, executed once, and dropped after its responses have been
// collected. Implementations embed Base.
type Command interface {
	// Names lists every command name this implementation answers to.
	Names() []string

	// Description describes name, or every name when name is empty.
	Description(name string) string

	// ReadConfiguration reads parameters from the <Command> element. Missing
	// required attributes are errors; unknown attributes are ignored.
	ReadConfiguration(el *etree.Element) error

	// Execute performs the command and queues its responses.
	Execute(ctx context.Context, devices DeviceCollection) error

	// Clone returns an unconfigured copy of the prototype.
	Clone() Command

	base() *Base
}

// Base carries the delivery metadata shared by all commands and collects
// their responses.
type Base struct {
	// Name is the registered name the command was instantiated under
	Name string

	DeviceName        string
	ClientID          uint
	ID                uint32
	RespondStructured bool

	responses []Response
}

func (b *Base) base() *Base { return b }

// QueueResponse adds a reply without payload.
func (b *Base) QueueResponse(status Status, message string) {
	b.QueueResponsePayload(status, message, "", nil)
}

// QueueResponsePayload adds a reply. Plain text replies carry only status and
// message; structured replies also carry the error string and payload.
func (b *Base) QueueResponsePayload(status Status, message, errorString string, payload any) {
	if !b.RespondStructured {
		b.responses = append(b.responses, NewStringReply(status, b.DeviceName, message))
		return
	}
	b.responses = append(b.responses, &CommandResponse{
		ClientID:    b.ClientID,
		OriginalID:  b.ID,
		DeviceName:  b.DeviceName,
		CommandName: b.Name,
		Status:      status,
		Message:     message,
		ErrorString: errorString,
		Payload:     payload,
	})
}

// Fail queues a failure reply for err and returns err.
func (b *Base) Fail(err error) error {
	if b.RespondStructured {
		b.QueueResponsePayload(StatusFail, "Command failed. See error message.", err.Error(), nil)
	} else {
		b.QueueResponse(StatusFail, err.Error())
	}
	return err
}

// PopResponses removes and returns the queued replies in order.
func (b *Base) PopResponses() []Response {
	out := b.responses
	b.responses = nil
	return out
}
