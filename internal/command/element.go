package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/plus-control/plusd/internal/device"
)

// parseCommandElement parses command text and returns its <Command> root.
func parseCommandElement(text string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("parse command text: %w", err)
	}
	roots := doc.ChildElements()
	if len(roots) != 1 {
		return nil, fmt.Errorf("command text must have exactly one root element, got %d", len(roots))
	}
	root := roots[0]
	if !strings.EqualFold(root.Tag, "Command") {
		return nil, fmt.Errorf("command element expected, got %s", root.Tag)
	}
	return root, nil
}

func optionalString(el *etree.Element, name, def string) string {
	return el.SelectAttrValue(name, def)
}

func requiredString(el *etree.Element, name string) (string, error) {
	attr := el.SelectAttr(name)
	if attr == nil {
		return "", fmt.Errorf("required attribute %s is missing", name)
	}
	return attr.Value, nil
}

func optionalFloat(el *etree.Element, name string, def float64) (float64, error) {
	attr := el.SelectAttr(name)
	if attr == nil {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %q is not a number", name, attr.Value)
	}
	return v, nil
}

// ParameterNames returns the Name attribute of every nested element that has one.
func ParameterNames(el *etree.Element) []string {
	var names []string
	for _, child := range el.ChildElements() {
		if name := child.SelectAttrValue("Name", ""); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ResolveDevice finds the device a command targets. With an id, that device
// must exist and implement T. Without one, the first device in collection
// order implementing T is used.
func ResolveDevice[T device.Device](devices DeviceCollection, id string) (T, error) {
	var zero T

	if id != "" {
		d, ok := devices.Device(id)
		if !ok {
			return zero, fmt.Errorf("%w: device %s", ErrDeviceNotFound, id)
		}
		t, ok := d.(T)
		if !ok {
			return zero, fmt.Errorf("%w: device %s (%s)", ErrWrongDeviceType, id, d.Type())
		}
		return t, nil
	}

	for _, d := range devices.Devices() {
		if t, ok := d.(T); ok {
			return t, nil
		}
	}
	return zero, fmt.Errorf("%w: no capable device", ErrDeviceNotFound)
}
