package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/plus-control/plusd/internal/device"
)

const defaultDicomOutputDir = "C:/StealthLinkDicomOutput"

// StealthLinkCommand acquires exam or registration data from a navigation
// server.
type StealthLinkCommand struct {
	Base

	DeviceID  string
	OutputDir string
}

func (c *StealthLinkCommand) Names() []string {
	return []string{"ExamData", "RegistrationData"}
}

func (c *StealthLinkCommand) Description(name string) string {
	desc := map[string]string{
		"ExamData":         "ExamData: Acquire the exam data from the StealthLink Server. The exam data contains the image being displayed on the StealthLink Server.",
		"RegistrationData": "RegistrationData: Acquire the registration data from the StealthLink Server.",
	}
	if d, ok := desc[name]; ok {
		return d
	}
	return desc["ExamData"] + "\n" + desc["RegistrationData"]
}

func (c *StealthLinkCommand) Clone() Command { return &StealthLinkCommand{} }

func (c *StealthLinkCommand) ReadConfiguration(el *etree.Element) error {
	c.OutputDir = optionalString(el, "DicomImagesOutputDirectory", defaultDicomOutputDir)
	c.DeviceID = optionalString(el, "StealthLinkDeviceId", "")
	return nil
}

func (c *StealthLinkCommand) Execute(ctx context.Context, devices DeviceCollection) error {
	source, err := ResolveDevice[device.ExamSource](devices, c.DeviceID)
	if errors.Is(err, ErrWrongDeviceType) {
		c.QueueResponse(StatusFail, fmt.Sprintf("The specified device %s is not StealthLink Device", c.DeviceID))
		return err
	}
	if err != nil {
		return c.Fail(err)
	}

	switch c.Name {
	case "RegistrationData":
		if err := source.RegistrationData(ctx); err != nil {
			return c.Fail(device.Normalize(err, nil, source.Type()))
		}
		c.QueueResponse(StatusSuccess, "Acquiring the registration data from StealthLink Server completed")
		return nil

	default:
		exam, err := source.ExamData(ctx, c.OutputDir)
		if err != nil {
			return c.Fail(device.Normalize(err, c.OutputDir, source.Type()))
		}
		c.QueueResponsePayload(StatusSuccess,
			"Acquiring the exam data from StealthLink Server completed, image sent as: Stealth_"+exam.PatientName,
			"", exam)
		return nil
	}
}
