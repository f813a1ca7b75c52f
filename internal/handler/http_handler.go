package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosight/perfship/internal/enricher"
	"github.com/gosight/perfship/internal/metrics"
	"github.com/gosight/perfship/internal/streams"
	"github.com/gosight/perfship/internal/transport"
	"github.com/gosight/perfship/internal/validation"
)

const (
	maxEventsPerBatch = 10000
	maxBodyBytes      = 1 << 20
)

// Authenticator is satisfied by *validation.Validator.
type Authenticator interface {
	ValidateAPIKey(ctx context.Context, apiKey, group string) (string, error)
	CheckRateLimit(ctx context.Context, identity string) bool
}

// Publisher is satisfied by *producer.KafkaProducer.
type Publisher interface {
	ProduceStreamEvents(ctx context.Context, streamKey string, events []*enricher.ForwardedEvent) error
}

type HTTPHandler struct {
	heads     streams.Heads
	auth      Authenticator
	publisher Publisher
	enricher  *enricher.Enricher
}

// NewHTTPHandler builds the sink API. A nil auth disables authentication and
// a nil publisher drops accepted events after advancing the stream head.
func NewHTTPHandler(heads streams.Heads, auth Authenticator, publisher Publisher, e *enricher.Enricher) *HTTPHandler {
	return &HTTPHandler{
		heads:     heads,
		auth:      auth,
		publisher: publisher,
		enricher:  e,
	}
}

func (h *HTTPHandler) HandlePutLogEvents(w http.ResponseWriter, r *http.Request) {
	group, err := url.PathUnescape(chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, http.StatusBadRequest, transport.CodeInvalidParameter, "invalid log group", "")
		return
	}
	stream, err := url.PathUnescape(chi.URLParam(r, "stream"))
	if err != nil {
		writeError(w, http.StatusBadRequest, transport.CodeInvalidParameter, "invalid log stream", "")
		return
	}

	// Read body
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, transport.CodeInvalidParameter, "failed to read body", "")
		return
	}
	defer r.Body.Close()
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, transport.CodeInvalidParameter, "request body too large", "")
		return
	}

	// Parse request
	var req transport.PutLogEventsBody
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, transport.CodeInvalidParameter, "invalid JSON", "")
		return
	}
	if err := validateEvents(req.LogEvents); err != nil {
		writeError(w, http.StatusBadRequest, transport.CodeInvalidParameter, err.Error(), "")
		return
	}

	if h.auth != nil {
		identity, err := h.auth.ValidateAPIKey(r.Context(), r.Header.Get(transport.HeaderAPIKey), group)
		switch {
		case errors.Is(err, validation.ErrInvalidAPIKey):
			writeError(w, http.StatusUnauthorized, transport.CodeUnauthorized, err.Error(), "")
			return
		case errors.Is(err, validation.ErrGroupForbidden):
			writeError(w, http.StatusForbidden, transport.CodeUnauthorized, err.Error(), "")
			return
		case err != nil:
			log.Error().Err(err).Str("group", group).Msg("API key validation failed")
			writeError(w, http.StatusInternalServerError, transport.CodeInternal, "authentication unavailable", "")
			return
		}

		// Rate limiting
		if !h.auth.CheckRateLimit(r.Context(), identity) {
			writeError(w, http.StatusTooManyRequests, transport.CodeThrottling, "rate limit exceeded", "")
			return
		}
	}

	streamKey := streams.Key(group, stream)
	// The head moves before the Kafka publish below. A failed publish answers
	// 500 with the head already advanced, so the batch is in the stream but
	// never forwarded; the client resyncs through a stale-token answer.
	head, ok, err := h.heads.Advance(r.Context(), streamKey, req.SequenceToken)
	if err != nil {
		log.Error().Err(err).Str("stream", streamKey).Msg("Failed to advance stream head")
		writeError(w, http.StatusInternalServerError, transport.CodeInternal, "stream head unavailable", "")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, transport.CodeInvalidSequenceToken,
			fmt.Sprintf("the given sequenceToken is invalid, the next expected sequenceToken is: %q", head), head)
		return
	}

	if h.publisher != nil {
		clientIP := clientAddr(r)
		forwarded := make([]*enricher.ForwardedEvent, len(req.LogEvents))
		for i, ev := range req.LogEvents {
			forwarded[i] = h.enricher.Enrich(group, stream, head, ev.Message, ev.Timestamp, clientIP)
		}

		if err := h.publisher.ProduceStreamEvents(r.Context(), streamKey, forwarded); err != nil {
			log.Error().
				Err(err).
				Str("stream", streamKey).
				Str("sequence_token", head).
				Int("count", len(forwarded)).
				Msg("Failed to publish accepted batch")
			writeError(w, http.StatusInternalServerError, transport.CodeInternal, "failed to publish events", "")
			return
		}
	}

	metrics.IncSinkPut("ok")
	metrics.AddSinkEvents(len(req.LogEvents))
	log.Debug().
		Str("stream", streamKey).
		Str("sequence_token", head).
		Int("count", len(req.LogEvents)).
		Msg("Batch appended")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transport.PutLogEventsResult{NextSequenceToken: head})
}

func validateEvents(events []transport.LogEvent) error {
	if len(events) == 0 {
		return errors.New("logEvents must not be empty")
	}
	if len(events) > maxEventsPerBatch {
		return fmt.Errorf("logEvents exceeds %d events", maxEventsPerBatch)
	}
	for i, ev := range events {
		if ev.Message == "" {
			return fmt.Errorf("logEvents[%d]: message must not be empty", i)
		}
		if i > 0 && ev.Timestamp < events[i-1].Timestamp {
			return fmt.Errorf("logEvents[%d]: events must be in chronological order", i)
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message, expected string) {
	metrics.IncSinkPut(code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(transport.ErrorBody{
		Code:                  code,
		Message:               message,
		ExpectedSequenceToken: expected,
	})
}

func clientAddr(r *http.Request) string {
	// RealIP middleware has already applied X-Real-IP / X-Forwarded-For
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+transport.HeaderAPIKey)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
