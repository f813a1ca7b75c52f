package shipper

import (
	"errors"
	"fmt"
)

// Terminal failure classes. Match them with errors.Is on the error returned
// by Append.
var (
	// ErrRetriesExhausted means every attempt met a stale-token rejection:
	// the client and store never agreed on the stream head, typically because
	// another writer is appending to the same stream.
	ErrRetriesExhausted = errors.New("stale token retries exhausted")
	// ErrTransport means the request produced no answer from the store.
	ErrTransport = errors.New("transport failure")
	// ErrRejected means the store refused the batch for a reason other than
	// a stale token.
	ErrRejected = errors.New("rejected by store")
	// ErrInvalidRecord means a record failed validation or serialization.
	// Nothing was sent.
	ErrInvalidRecord = errors.New("invalid record")
)

// ShipError describes a failed Append.
type ShipError struct {
	Kind     error
	Attempts int
	// Token is the last token presented to, or offered by, the store.
	Token      string
	Code       string
	Diagnostic string
	Err        error
}

func (e *ShipError) Error() string {
	msg := fmt.Sprintf("%v after %d attempt(s)", e.Kind, e.Attempts)
	if e.Code != "" {
		msg += fmt.Sprintf(": %s", e.Code)
	}
	if e.Diagnostic != "" {
		msg += fmt.Sprintf(": %s", e.Diagnostic)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ShipError) Is(target error) bool {
	return target == e.Kind
}

func (e *ShipError) Unwrap() error {
	return e.Err
}
