package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/plus-control/plusd/internal/device"
)

// VersionCommand reports the server version.
type VersionCommand struct {
	Base

	ClientVersion string
}

func (c *VersionCommand) Names() []string { return []string{"Version"} }

func (c *VersionCommand) Description(string) string {
	return "Version: Exchange version information between client and server."
}

func (c *VersionCommand) Clone() Command { return &VersionCommand{} }

func (c *VersionCommand) ReadConfiguration(el *etree.Element) error {
	c.ClientVersion = optionalString(el, "Version", "")
	return nil
}

func (c *VersionCommand) Execute(context.Context, DeviceCollection) error {
	c.QueueResponsePayload(StatusSuccess, Version, "", map[string]string{
		"server": Version,
		"client": c.ClientVersion,
	})
	return nil
}

// RequestDeviceIDsCommand lists device ids, optionally filtered by type.
type RequestDeviceIDsCommand struct {
	Base

	DeviceType string
}

func (c *RequestDeviceIDsCommand) Names() []string { return []string{"RequestDeviceIds"} }

func (c *RequestDeviceIDsCommand) Description(string) string {
	return "RequestDeviceIds: Returns the list of available device IDs."
}

func (c *RequestDeviceIDsCommand) Clone() Command { return &RequestDeviceIDsCommand{} }

func (c *RequestDeviceIDsCommand) ReadConfiguration(el *etree.Element) error {
	c.DeviceType = optionalString(el, "DeviceType", "")
	return nil
}

func (c *RequestDeviceIDsCommand) Execute(_ context.Context, devices DeviceCollection) error {
	ids := deviceIDs(devices.Devices(), c.DeviceType)
	c.QueueResponsePayload(StatusSuccess, strings.Join(ids, ","), "", ids)
	return nil
}

// SendTextCommand delivers a text message to a device.
type SendTextCommand struct {
	Base

	DeviceID string
	Text     string
}

func (c *SendTextCommand) Names() []string { return []string{"SendText"} }

func (c *SendTextCommand) Description(string) string {
	return "SendText: Send text to a device."
}

func (c *SendTextCommand) Clone() Command { return &SendTextCommand{} }

func (c *SendTextCommand) ReadConfiguration(el *etree.Element) error {
	c.DeviceID = optionalString(el, "DeviceId", "")
	text, err := requiredString(el, "Text")
	if err != nil {
		return err
	}
	c.Text = text
	return nil
}

func (c *SendTextCommand) Execute(ctx context.Context, devices DeviceCollection) error {
	receiver, err := ResolveDevice[device.TextReceiver](devices, c.DeviceID)
	if err != nil {
		return c.Fail(err)
	}
	reply, err := receiver.ReceiveText(ctx, c.Text)
	if err != nil {
		return c.Fail(device.Normalize(err, nil, receiver.Type()))
	}
	c.QueueResponse(StatusSuccess, reply)
	return nil
}

// GetImageCommand captures one image from a device.
type GetImageCommand struct {
	Base

	DeviceID string
}

func (c *GetImageCommand) Names() []string { return []string{"GetImage"} }

func (c *GetImageCommand) Description(string) string {
	return "GetImage: Capture an image from an imaging device."
}

func (c *GetImageCommand) Clone() Command { return &GetImageCommand{} }

func (c *GetImageCommand) ReadConfiguration(el *etree.Element) error {
	c.DeviceID = optionalString(el, "DeviceId", "")
	return nil
}

func (c *GetImageCommand) Execute(ctx context.Context, devices DeviceCollection) error {
	source, err := ResolveDevice[device.ImageSource](devices, c.DeviceID)
	if err != nil {
		return c.Fail(err)
	}
	img, err := source.CaptureImage(ctx)
	if err != nil {
		return c.Fail(device.Normalize(err, nil, source.Type()))
	}
	c.QueueResponsePayload(StatusSuccess,
		fmt.Sprintf("Got %s image (%d bytes) from device: %s", img.Format, len(img.Data), source.ID()),
		"", img)
	return nil
}

// deviceIDs returns the ids of devices whose type matches deviceType, ignoring
// case; an empty deviceType matches all.
func deviceIDs(devices []device.Device, deviceType string) []string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		if deviceType != "" && !strings.EqualFold(d.Type(), deviceType) {
			continue
		}
		ids = append(ids, d.ID())
	}
	return ids
}
