package command

import (
	"strings"

	"github.com/beevik/etree"
)

// Status is the outcome carried by a response.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"
)

// Response is one reply waiting for delivery. It is either a *StringResponse
// or a *CommandResponse.
type Response interface {
	Succeeded() bool
	Device() string
}

// StringResponse is a plain text reply holding a <CommandReply/> element.
type StringResponse struct {
	DeviceName string `json:"deviceName"`
	Status     Status `json:"status"`
	Message    string `json:"message"`
}

func (r *StringResponse) Succeeded() bool { return r.Status == StatusSuccess }
func (r *StringResponse) Device() string  { return r.DeviceName }

// CommandResponse is a structured reply routed back to the requesting client
// by correlation id.
type CommandResponse struct {
	ClientID    uint   `json:"clientId"`
	OriginalID  uint32 `json:"originalId"`
	DeviceName  string `json:"deviceName"`
	CommandName string `json:"commandName"`
	Status      Status `json:"status"`
	Message     string `json:"message,omitempty"`
	ErrorString string `json:"errorString,omitempty"`
	Payload     any    `json:"payload,omitempty"`
}

func (r *CommandResponse) Succeeded() bool { return r.Status == StatusSuccess }
func (r *CommandResponse) Device() string  { return r.DeviceName }

// NewStringReply builds a string response whose message is
// <CommandReply Status="..." Message="..." /> with the message XML-escaped.
func NewStringReply(status Status, deviceName, message string) *StringResponse {
	return &StringResponse{
		DeviceName: deviceName,
		Status:     status,
		Message:    CommandReplyXML(status, message),
	}
}

// CommandReplyXML renders the <CommandReply/> element.
func CommandReplyXML(status Status, message string) string {
	doc := etree.NewDocument()
	el := doc.CreateElement("CommandReply")
	el.CreateAttr("Status", string(status))
	el.CreateAttr("Message", message)

	s, err := doc.WriteToString()
	if err != nil {
		return `<CommandReply Status="` + string(status) + `" Message="" />`
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "/>") + " />"
}
