package device

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized device errors.
var (
	ErrInvalidParameter = errors.New("INVALID_PARAMETER")
	ErrBusy             = errors.New("BUSY")
	ErrUnavailable      = errors.New("UNAVAILABLE")
	ErrInternal         = errors.New("INTERNAL")
)

// TokenMap lists the vendor tokens that map to each normalized code.
type TokenMap struct {
	InvalidParameter []string
	Busy             []string
	Unavailable      []string
}

// TokenMappings holds the token tables per device type. Types without an
// entry use "generic". Tokens that match nothing map to ErrInternal.
var TokenMappings = map[string]TokenMap{
	"bkoem": {
		InvalidParameter: []string{
			"MALFORMED_IMAGE",
			"UNKNOWN_PARAMETER",
			"BAD_ESCAPE",
		},
		Busy: []string{
			"FREEZE",
			"IN_PROGRESS",
		},
		Unavailable: []string{
			"TRANSPORT_READ",
			"NOT_CONNECTED",
			"CONNECTION REFUSED",
			"I/O TIMEOUT",
			"EOF",
		},
	},
	"generic": {
		InvalidParameter: []string{
			"INVALID_PARAMETER",
			"OUT_OF_RANGE",
			"BAD_VALUE",
		},
		Busy: []string{
			"BUSY",
			"RETRY",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"OFFLINE",
			"NOT_READY",
			"NOT_CONNECTED",
		},
	},
}

// Error wraps a device failure with its normalized code.
type Error struct {
	Code     error
	Original error
	Details  any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (device: %v)", e.Code, e.Original)
}

func (e *Error) Unwrap() []error {
	return []error{e.Code, e.Original}
}

// Normalize maps err to a normalized code using the token table for
// deviceType. Already normalized errors are returned unchanged.
func Normalize(err error, details any, deviceType string) error {
	if err == nil {
		return nil
	}

	var de *Error
	if errors.As(err, &de) {
		return err
	}

	return &Error{
		Code:     codeFor(err.Error(), deviceType),
		Original: err,
		Details:  details,
	}
}

// CodeOf returns the normalized code carried by err, or nil.
func CodeOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return nil
}

func codeFor(msg, deviceType string) error {
	tokens, ok := TokenMappings[deviceType]
	if !ok {
		tokens = TokenMappings["generic"]
	}

	upper := strings.ToUpper(msg)
	for _, tok := range tokens.InvalidParameter {
		if strings.Contains(upper, tok) {
			return ErrInvalidParameter
		}
	}
	for _, tok := range tokens.Busy {
		if strings.Contains(upper, tok) {
			return ErrBusy
		}
	}
	for _, tok := range tokens.Unavailable {
		if strings.Contains(upper, tok) {
			return ErrUnavailable
		}
	}
	return ErrInternal
}
