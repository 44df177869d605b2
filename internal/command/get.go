package command

import (
	"context"
	"fmt"
	"slices"

	"github.com/beevik/etree"

	"github.com/plus-control/plusd/internal/device"
)

// GetCommand reads parameter values from a device.
//
//	<Command Name="Get" DeviceId="BK">
//	  <Parameter Name="Depth" />
//	  <Parameter Name="Gain" />
//	</Command>
//
// With no <Parameter> children every parameter the device knows is returned.
type GetCommand struct {
	Base

	DeviceID   string
	Depth      *float64
	Gain       *float64
	Parameters []string
}

func (c *GetCommand) Names() []string { return []string{"Get"} }

func (c *GetCommand) Description(string) string {
	return "Get: Send command to the device."
}

func (c *GetCommand) Clone() Command { return &GetCommand{} }

func (c *GetCommand) ReadConfiguration(el *etree.Element) error {
	c.DeviceID = optionalString(el, "DeviceId", "")

	for _, attr := range []struct {
		name string
		dst  **float64
	}{
		{"Depth", &c.Depth},
		{"Gain", &c.Gain},
	} {
		if el.SelectAttr(attr.name) == nil {
			continue
		}
		v, err := optionalFloat(el, attr.name, 0)
		if err != nil {
			return err
		}
		*attr.dst = &v
	}

	c.Parameters = ParameterNames(el)
	return nil
}

func (c *GetCommand) Execute(ctx context.Context, devices DeviceCollection) error {
	id := c.DeviceID
	if id == "" {
		id = c.DeviceName
	}
	querier, err := ResolveDevice[device.ParameterQuerier](devices, id)
	if err != nil {
		return c.Fail(err)
	}

	names, err := c.requestedNames(querier)
	if err != nil {
		return c.Fail(err)
	}

	answers, err := querier.ParameterAnswers(ctx, names)
	if err != nil {
		return c.Fail(device.Normalize(err, names, querier.Type()))
	}

	c.QueueResponsePayload(StatusSuccess, "Got Get command for device: "+querier.ID(), "", answers)
	return nil
}

// requestedNames returns the parameters to query. Depth and Gain attributes
// request those parameters in addition to any <Parameter> children.
func (c *GetCommand) requestedNames(querier device.ParameterQuerier) ([]string, error) {
	valid := querier.ParameterNames()

	names := slices.Clone(c.Parameters)
	if c.Depth != nil && !slices.Contains(names, "Depth") {
		names = append(names, "Depth")
	}
	if c.Gain != nil && !slices.Contains(names, "Gain") {
		names = append(names, "Gain")
	}
	if len(names) == 0 {
		return valid, nil
	}

	for _, name := range names {
		if !slices.Contains(valid, name) {
			return nil, fmt.Errorf("%w: device %s has no parameter %s", device.ErrInvalidParameter, querier.ID(), name)
		}
	}
	return names, nil
}
