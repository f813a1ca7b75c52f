// Package transport performs the remote append of log events to a
// sequence-token guarded log stream.
package transport

import "context"

// LogEvent is one serialized record and its client-assigned timestamp in
// Unix milliseconds.
type LogEvent struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Request is one append attempt. An empty SequenceToken is omitted on the
// wire.
type Request struct {
	Group         string
	Stream        string
	Events        []LogEvent
	SequenceToken string
}

// Outcome tags the variant carried by a Response.
type Outcome int

const (
	// Accepted means the events were appended; NextToken is set.
	Accepted Outcome = iota
	// StaleToken means the presented token did not match the stream head;
	// ExpectedToken carries the head.
	StaleToken
	// Rejected is any other refusal by the store. ExpectedToken may carry a
	// resynchronization hint.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case StaleToken:
		return "stale_token"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Response is the classified answer of the remote store.
type Response struct {
	Outcome       Outcome
	NextToken     string
	ExpectedToken string
	Code          string
	Diagnostic    string
}

// Transport sends one append request. A non-nil error means the request
// never produced a classifiable answer (network failure, timeout).
type Transport interface {
	PutLogEvents(ctx context.Context, req *Request) (*Response, error)
}
