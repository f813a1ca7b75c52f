package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPDoer = (*http.Client)(nil)

// HTTP appends to a logsink server over its JSON API.
type HTTP struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

func NewHTTP(baseURL, apiKey string, timeout time.Duration) *HTTP {
	return NewHTTPWithClient(baseURL, apiKey, &http.Client{Timeout: timeout})
}

func NewHTTPWithClient(baseURL, apiKey string, client HTTPDoer) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// EventsURL is the append endpoint of one stream.
func EventsURL(baseURL, group, stream string) string {
	return fmt.Sprintf("%s/v1/log-groups/%s/streams/%s/events",
		strings.TrimRight(baseURL, "/"), url.PathEscape(group), url.PathEscape(stream))
}

func (h *HTTP) PutLogEvents(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(PutLogEventsBody{
		LogEvents:     req.Events,
		SequenceToken: req.SequenceToken,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, EventsURL(h.baseURL, req.Group, req.Stream), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set(HeaderAPIKey, h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		var result PutLogEventsResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &Response{Outcome: Accepted, NextToken: result.NextSequenceToken}, nil
	}

	return classifyHTTPError(resp.StatusCode, data)
}

// classifyHTTPError maps a non-2xx answer. A 5xx without a sink error code
// came from something in front of the sink (gateway, proxy timeout) and is a
// transport failure, not a verdict of the store.
func classifyHTTPError(status int, data []byte) (*Response, error) {
	var body ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		diagnostic := strings.TrimSpace(string(data))
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("sink unavailable: HTTP %d: %s", status, diagnostic)
		}
		return &Response{
			Outcome:    Rejected,
			Code:       fmt.Sprintf("HTTP%d", status),
			Diagnostic: diagnostic,
		}, nil
	}

	if body.Code == CodeInvalidSequenceToken {
		return &Response{
			Outcome:       StaleToken,
			ExpectedToken: body.ExpectedSequenceToken,
			Code:          body.Code,
			Diagnostic:    body.Message,
		}, nil
	}

	return &Response{
		Outcome:       Rejected,
		ExpectedToken: body.ExpectedSequenceToken,
		Code:          body.Code,
		Diagnostic:    body.Message,
	}, nil
}
