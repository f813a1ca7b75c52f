package transformer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gosight/perfship/internal/storage"
)

// ForwardedEvent represents the event structure published by the log sink
type ForwardedEvent struct {
	EventID         string `json:"event_id"`
	LogGroup        string `json:"log_group"`
	LogStream       string `json:"log_stream"`
	SequenceToken   string `json:"sequence_token"`
	Timestamp       int64  `json:"timestamp"`
	Message         string `json:"message"`
	EntryType       string `json:"entry_type"`
	Name            string `json:"name"`
	ServerTimestamp int64  `json:"server_timestamp"`
	Browser         string `json:"browser"`
	BrowserVersion  string `json:"browser_version"`
	OS              string `json:"os"`
	DeviceType      string `json:"device_type"`
	Country         string `json:"country"`
	City            string `json:"city"`
}

var ErrNotPerformance = errors.New("message is not a performance entry")

// performance mirrors the timing payload. Duration is a number for browser
// entries and an object for custom measurements.
type performance struct {
	Start    *float64        `json:"start"`
	Duration json.RawMessage `json:"duration"`
}

type perfMessage struct {
	Entry       string      `json:"entry"`
	Performance performance `json:"performance"`
}

// TransformEvent turns a Kafka message value into a ClickHouse row.
func TransformEvent(value []byte) (*storage.PerformanceRow, error) {
	var event ForwardedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, err
	}

	var msg perfMessage
	if err := json.Unmarshal([]byte(event.Message), &msg); err != nil || msg.Entry != "Performance" {
		return nil, ErrNotPerformance
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	ts := event.Timestamp
	if ts == 0 {
		ts = event.ServerTimestamp
	}

	row := &storage.PerformanceRow{
		EventID:        event.EventID,
		LogGroup:       event.LogGroup,
		LogStream:      event.LogStream,
		SequenceToken:  event.SequenceToken,
		Timestamp:      time.UnixMilli(ts),
		EntryType:      event.EntryType,
		Name:           event.Name,
		DurationMs:     parseDuration(msg.Performance.Duration),
		Browser:        event.Browser,
		BrowserVersion: event.BrowserVersion,
		OS:             event.OS,
		DeviceType:     event.DeviceType,
		Country:        event.Country,
		City:           event.City,
		Message:        event.Message,
	}
	if msg.Performance.Start != nil {
		row.StartMs = *msg.Performance.Start
	}

	return row, nil
}

func parseDuration(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var d float64
	if err := json.Unmarshal(raw, &d); err == nil {
		return d
	}

	var custom struct {
		Total float64 `json:"total"`
	}
	if err := json.Unmarshal(raw, &custom); err == nil {
		return custom.Total
	}
	return 0
}
