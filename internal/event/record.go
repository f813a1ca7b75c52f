package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the performance timeline entry type a record was captured from.
type Kind string

const (
	KindResource   Kind = "resource"
	KindNavigation Kind = "navigation"
	KindPaint      Kind = "paint"
	KindCustom     Kind = "custom"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindResource, KindNavigation, KindPaint, KindCustom:
		return true
	}
	return false
}

var (
	ErrMissingName   = errors.New("record name is required")
	ErrMissingTiming = errors.New("record timing is required")
	ErrInvalidKind   = errors.New("invalid record kind")
)

// Record is one observed measurement. Device, Timing and Details are carried
// as opaque JSON and never interpreted by the shipper.
type Record struct {
	Kind    Kind            `json:"type"`
	Name    string          `json:"name"`
	Device  json.RawMessage `json:"device,omitempty"`
	Timing  json.RawMessage `json:"performance"`
	Details json.RawMessage `json:"info,omitempty"`
}

// Batch is an ordered group of records submitted in one append.
type Batch []Record

// Validate checks the record invariants.
func (r Record) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if r.Name == "" {
		return ErrMissingName
	}
	if len(bytes.TrimSpace(r.Timing)) == 0 || bytes.Equal(bytes.TrimSpace(r.Timing), []byte("null")) {
		return ErrMissingTiming
	}
	return nil
}

// message is the serialized log line shape consumed downstream.
type message struct {
	Entry       string          `json:"entry"`
	Type        Kind            `json:"type"`
	Name        string          `json:"name"`
	Device      json.RawMessage `json:"device,omitempty"`
	Performance json.RawMessage `json:"performance"`
	Info        json.RawMessage `json:"info,omitempty"`
}

// Message serializes the record into the log line sent to the remote store.
func (r Record) Message() (string, error) {
	data, err := json.Marshal(message{
		Entry:       "Performance",
		Type:        r.Kind,
		Name:        r.Name,
		Device:      r.Device,
		Performance: r.Timing,
		Info:        r.Details,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
