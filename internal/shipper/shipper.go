// Package shipper appends ordered batches of performance records to one
// sequence-token guarded log stream.
//
// A Shipper serializes its Append calls, so at most one append is in flight
// per stream. Other processes writing the same stream can still race it; the
// stale-token retry loop is the only reconciliation between them.
package shipper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/perfship/internal/event"
	"github.com/gosight/perfship/internal/metrics"
	"github.com/gosight/perfship/internal/tokenstore"
	"github.com/gosight/perfship/internal/transport"
)

const DefaultMaxRetries = 3

type Options struct {
	Group  string
	Stream string
	// MaxRetries bounds stale-token retries. Zero selects DefaultMaxRetries,
	// a negative value disables retries.
	MaxRetries int
	Logger     *zerolog.Logger
	Now        func() time.Time
}

// Ack acknowledges an accepted batch.
type Ack struct {
	Count     int
	NextToken string
	Attempts  int
}

type Shipper struct {
	transport  transport.Transport
	tokens     tokenstore.Store
	group      string
	stream     string
	maxRetries int
	now        func() time.Time
	log        zerolog.Logger

	mu sync.Mutex
}

func New(t transport.Transport, tokens tokenstore.Store, opts Options) (*Shipper, error) {
	if t == nil {
		return nil, errors.New("shipper: transport is required")
	}
	if tokens == nil {
		return nil, errors.New("shipper: token store is required")
	}
	if opts.Group == "" || opts.Stream == "" {
		return nil, errors.New("shipper: log group and stream are required")
	}

	maxRetries := opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Shipper{
		transport:  t,
		tokens:     tokens,
		group:      opts.Group,
		stream:     opts.Stream,
		maxRetries: maxRetries,
		now:        now,
		log:        logger.With().Str("group", opts.Group).Str("stream", opts.Stream).Logger(),
	}, nil
}

// Append ships batch in order. An empty batch is a no-op. Only stale-token
// rejections are retried, each time with the token the store expects and the
// identical event list.
func (s *Shipper) Append(ctx context.Context, batch event.Batch) (Ack, error) {
	if len(batch) == 0 {
		return Ack{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ack, err := s.appendLocked(ctx, batch)
	metrics.ObserveAppend(resultLabel(err), time.Since(start))
	if err != nil {
		return ack, err
	}

	metrics.AddEventsShipped(ack.Count)
	s.log.Debug().
		Int("count", ack.Count).
		Int("attempts", ack.Attempts).
		Dur("duration", time.Since(start)).
		Msg("Batch appended")
	return ack, nil
}

func (s *Shipper) appendLocked(ctx context.Context, batch event.Batch) (Ack, error) {
	events, err := s.compose(batch)
	if err != nil {
		return Ack{}, err
	}

	token := s.readToken(ctx)
	for attempt := 1; ; attempt++ {
		res, err := s.transmit(ctx, events, token)
		if err != nil {
			metrics.IncAppendAttempt("transport_failure")
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("Append transport failure")
			return Ack{}, &ShipError{Kind: ErrTransport, Attempts: attempt, Token: token, Err: err}
		}
		metrics.IncAppendAttempt(res.Outcome.String())

		switch res.Outcome {
		case transport.Accepted:
			s.writeToken(ctx, res.NextToken)
			return Ack{Count: len(events), NextToken: res.NextToken, Attempts: attempt}, nil

		case transport.StaleToken:
			token = res.ExpectedToken
			s.writeToken(ctx, token)
			if attempt > s.maxRetries {
				s.log.Warn().
					Int("attempts", attempt).
					Str("expected_token", token).
					Msg("Sequence token never converged")
				return Ack{}, &ShipError{
					Kind:       ErrRetriesExhausted,
					Attempts:   attempt,
					Token:      token,
					Code:       res.Code,
					Diagnostic: res.Diagnostic,
				}
			}
			s.log.Debug().
				Int("attempt", attempt).
				Str("expected_token", token).
				Msg("Stale sequence token, retrying")

		default:
			if res.ExpectedToken != "" {
				s.writeToken(ctx, res.ExpectedToken)
			}
			s.log.Warn().
				Int("attempt", attempt).
				Str("code", res.Code).
				Str("diagnostic", res.Diagnostic).
				Msg("Append rejected")
			return Ack{}, &ShipError{
				Kind:       ErrRejected,
				Attempts:   attempt,
				Token:      token,
				Code:       res.Code,
				Diagnostic: res.Diagnostic,
			}
		}
	}
}

// compose serializes the batch once. Every attempt of the call sends this
// exact slice.
func (s *Shipper) compose(batch event.Batch) ([]transport.LogEvent, error) {
	ts := s.now().UnixMilli()
	events := make([]transport.LogEvent, len(batch))
	for i, rec := range batch {
		if err := rec.Validate(); err != nil {
			return nil, &ShipError{Kind: ErrInvalidRecord, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		msg, err := rec.Message()
		if err != nil {
			return nil, &ShipError{Kind: ErrInvalidRecord, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		events[i] = transport.LogEvent{Message: msg, Timestamp: ts}
	}
	return events, nil
}

// transmit performs one attempt presenting token.
func (s *Shipper) transmit(ctx context.Context, events []transport.LogEvent, token string) (*transport.Response, error) {
	resp, err := s.transport.PutLogEvents(ctx, &transport.Request{
		Group:         s.group,
		Stream:        s.stream,
		Events:        events,
		SequenceToken: token,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("transport returned no response")
	}
	return resp, nil
}

// readToken fails open: an unreadable store means no token is presented and
// the store's stale-token rejection re-establishes the head.
func (s *Shipper) readToken(ctx context.Context) string {
	token, ok, err := s.tokens.Read(ctx)
	if err != nil {
		metrics.IncTokenStoreError("read")
		s.log.Warn().Err(err).Msg("Token store read failed, appending without token")
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

func (s *Shipper) writeToken(ctx context.Context, token string) {
	if err := s.tokens.Write(ctx, token); err != nil {
		metrics.IncTokenStoreError("write")
		s.log.Warn().Err(err).Msg("Token store write failed")
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, ErrTransport):
		return "transport_failure"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid_record"
	default:
		return "error"
	}
}
