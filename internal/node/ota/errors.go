package ota

import (
	"errors"
	"fmt"
)

// Reason classifies why an update attempt failed.
type Reason string

const (
	ReasonConnectivity Reason = "connectivity"
	ReasonProtocol     Reason = "protocol"
	ReasonNotFound     Reason = "not_found"
	ReasonExtraction   Reason = "extraction"
	ReasonStorage      Reason = "storage"
	ReasonActivation   Reason = "activation"
)

// Transient reports whether an attempt failing for r is worth repeating
// within the same check.
func (r Reason) Transient() bool {
	return r == ReasonConnectivity || r == ReasonProtocol
}

// Error is a classified update failure.
type Error struct {
	Reason Reason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("update %s failed (%s): %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Reason, so callers can test
// errors.Is(err, &ota.Error{Reason: ota.ReasonNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason && t.Op == "" && t.Err == nil
}

// ReasonOf returns the reason of a classified error, or "" for anything else.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

var (
	errLinkDown = errors.New("network not associated")
	errTooLarge = errors.New("manifest exceeds size limit")
	errNotNewer = errors.New("candidate is not newer than the installed version")
)
