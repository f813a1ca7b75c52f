package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosight/perfship/internal/event"
	"github.com/gosight/perfship/internal/tokenstore"
	"github.com/gosight/perfship/internal/transport"
)

type scriptedTransport struct {
	requests  []transport.Request
	responses []*transport.Response
	errs      []error
}

func (f *scriptedTransport) PutLogEvents(_ context.Context, req *transport.Request) (*transport.Response, error) {
	cp := *req
	cp.Events = append([]transport.LogEvent(nil), req.Events...)
	f.requests = append(f.requests, cp)

	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, errors.New("no scripted response")
}

type brokenStore struct {
	readErr  error
	writeErr error
	writes   []string
}

func (b *brokenStore) Read(context.Context) (string, bool, error) {
	return "", false, b.readErr
}

func (b *brokenStore) Write(_ context.Context, token string) error {
	b.writes = append(b.writes, token)
	return b.writeErr
}

func (b *brokenStore) Close() error { return nil }

func accepted(next string) *transport.Response {
	return &transport.Response{Outcome: transport.Accepted, NextToken: next}
}

func stale(expected string) *transport.Response {
	return &transport.Response{Outcome: transport.StaleToken, ExpectedToken: expected, Code: transport.CodeInvalidSequenceToken}
}

func testBatch(n int) event.Batch {
	batch := make(event.Batch, n)
	for i := range batch {
		batch[i] = event.Record{
			Kind:   event.KindResource,
			Name:   "https://example.com/asset-" + strconv.Itoa(i) + ".js",
			Timing: json.RawMessage(`{"start":` + strconv.Itoa(i) + `,"duration":12.5}`),
		}
	}
	return batch
}

func newTestShipper(t *testing.T, tr transport.Transport, store tokenstore.Store, maxRetries int) *Shipper {
	t.Helper()
	logger := zerolog.New(io.Discard)
	s, err := New(tr, store, Options{
		Group:      "web",
		Stream:     "prod",
		MaxRetries: maxRetries,
		Logger:     &logger,
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func storedToken(t *testing.T, store tokenstore.Store) string {
	t.Helper()
	token, _, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return token
}

func TestAppendFirstBatchWithoutToken(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{accepted("A")}}
	store := tokenstore.NewMemory()
	s := newTestShipper(t, tr, store, 0)

	ack, err := s.Append(context.Background(), testBatch(2))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(tr.requests) != 1 {
		t.Fatalf("expected 1 transmission got %d", len(tr.requests))
	}
	req := tr.requests[0]
	if req.SequenceToken != "" {
		t.Fatalf("expected no token, got %q", req.SequenceToken)
	}
	if req.Group != "web" || req.Stream != "prod" || len(req.Events) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Events[0].Timestamp != 1700000000000 {
		t.Fatalf("expected client timestamp, got %d", req.Events[0].Timestamp)
	}
	if ack.Count != 2 || ack.NextToken != "A" || ack.Attempts != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if got := storedToken(t, store); got != "A" {
		t.Fatalf("expected stored token A got %q", got)
	}
}

func TestAppendEmptyBatchIsNoop(t *testing.T) {
	tr := &scriptedTransport{}
	s := newTestShipper(t, tr, tokenstore.NewMemory(), 0)

	ack, err := s.Append(context.Background(), nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ack.Count != 0 {
		t.Fatalf("expected empty ack, got %+v", ack)
	}
	if len(tr.requests) != 0 {
		t.Fatalf("expected no transmissions, got %d", len(tr.requests))
	}
}

func TestAppendRecoversFromStaleToken(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{stale("B"), accepted("C")}}
	store := tokenstore.NewMemory()
	if err := store.Write(context.Background(), "A"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s := newTestShipper(t, tr, store, 0)

	ack, err := s.Append(context.Background(), testBatch(3))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(tr.requests) != 2 {
		t.Fatalf("expected 2 transmissions got %d", len(tr.requests))
	}
	if tr.requests[0].SequenceToken != "A" || tr.requests[1].SequenceToken != "B" {
		t.Fatalf("expected tokens A then B, got %q then %q", tr.requests[0].SequenceToken, tr.requests[1].SequenceToken)
	}
	if !reflect.DeepEqual(tr.requests[0].Events, tr.requests[1].Events) {
		t.Fatal("retried attempt changed the event list")
	}
	if ack.Attempts != 2 || ack.NextToken != "C" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if got := storedToken(t, store); got != "C" {
		t.Fatalf("expected stored token C got %q", got)
	}
}

func TestAppendRetriesExhausted(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{stale("T1"), stale("T2"), stale("T3"), stale("T4"), accepted("never")}}
	store := tokenstore.NewMemory()
	s := newTestShipper(t, tr, store, 3)

	_, err := s.Append(context.Background(), testBatch(1))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted got %v", err)
	}
	if errors.Is(err, ErrRejected) {
		t.Fatal("exhausted retries must not look like a rejection")
	}

	var shipErr *ShipError
	if !errors.As(err, &shipErr) || shipErr.Attempts != 4 || shipErr.Token != "T4" {
		t.Fatalf("unexpected error detail %+v", shipErr)
	}
	if len(tr.requests) != 4 {
		t.Fatalf("expected 4 transmissions got %d", len(tr.requests))
	}
	for i := 1; i < len(tr.requests); i++ {
		if tr.requests[i].SequenceToken != "T"+strconv.Itoa(i) {
			t.Fatalf("attempt %d presented %q", i+1, tr.requests[i].SequenceToken)
		}
	}
	if got := storedToken(t, store); got != "T4" {
		t.Fatalf("expected last offered token T4 stored, got %q", got)
	}
}

func TestAppendRetryBoundFollowsOptions(t *testing.T) {
	cases := []struct {
		maxRetries    int
		transmissions int
	}{
		{maxRetries: 0, transmissions: DefaultMaxRetries + 1},
		{maxRetries: 1, transmissions: 2},
		{maxRetries: -1, transmissions: 1},
	}

	for _, tc := range cases {
		responses := make([]*transport.Response, 10)
		for i := range responses {
			responses[i] = stale("T" + strconv.Itoa(i))
		}
		tr := &scriptedTransport{responses: responses}
		s := newTestShipper(t, tr, tokenstore.NewMemory(), tc.maxRetries)

		if _, err := s.Append(context.Background(), testBatch(1)); !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("maxRetries=%d: expected ErrRetriesExhausted got %v", tc.maxRetries, err)
		}
		if len(tr.requests) != tc.transmissions {
			t.Fatalf("maxRetries=%d: expected %d transmissions got %d", tc.maxRetries, tc.transmissions, len(tr.requests))
		}
	}
}

func TestAppendTransportFailureIsNotRetried(t *testing.T) {
	boom := errors.New("i/o timeout")
	tr := &scriptedTransport{errs: []error{boom}, responses: []*transport.Response{nil, accepted("A")}}
	store := tokenstore.NewMemory()
	s := newTestShipper(t, tr, store, 0)

	_, err := s.Append(context.Background(), testBatch(2))
	if !errors.Is(err, ErrTransport) || !errors.Is(err, boom) {
		t.Fatalf("expected transport failure wrapping cause, got %v", err)
	}
	if len(tr.requests) != 1 {
		t.Fatalf("expected 1 transmission got %d", len(tr.requests))
	}
	if got := storedToken(t, store); got != "" {
		t.Fatalf("expected no token stored, got %q", got)
	}
}

func TestAppendRejectionIsNotRetried(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{
		{Outcome: transport.Rejected, Code: "Unauthorized", Diagnostic: "invalid api key"},
		accepted("A"),
	}}
	store := tokenstore.NewMemory()
	s := newTestShipper(t, tr, store, 0)

	_, err := s.Append(context.Background(), testBatch(2))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected got %v", err)
	}
	var shipErr *ShipError
	if !errors.As(err, &shipErr) || shipErr.Code != "Unauthorized" || shipErr.Diagnostic != "invalid api key" {
		t.Fatalf("expected diagnostic attached, got %+v", shipErr)
	}
	if len(tr.requests) != 1 {
		t.Fatalf("expected 1 transmission got %d", len(tr.requests))
	}
}

func TestAppendRejectionWithHintResyncsToken(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{
		{Outcome: transport.Rejected, Code: "DataAlreadyAcceptedException", ExpectedToken: "D"},
	}}
	store := tokenstore.NewMemory()
	s := newTestShipper(t, tr, store, 0)

	if _, err := s.Append(context.Background(), testBatch(1)); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected got %v", err)
	}
	if len(tr.requests) != 1 {
		t.Fatalf("expected 1 transmission got %d", len(tr.requests))
	}
	if got := storedToken(t, store); got != "D" {
		t.Fatalf("expected hint D stored, got %q", got)
	}
}

func TestAppendInvalidRecordSendsNothing(t *testing.T) {
	tr := &scriptedTransport{}
	s := newTestShipper(t, tr, tokenstore.NewMemory(), 0)

	batch := testBatch(2)
	batch[1].Timing = nil

	_, err := s.Append(context.Background(), batch)
	if !errors.Is(err, ErrInvalidRecord) || !errors.Is(err, event.ErrMissingTiming) {
		t.Fatalf("expected invalid record error, got %v", err)
	}
	if len(tr.requests) != 0 {
		t.Fatalf("expected no transmissions, got %d", len(tr.requests))
	}
}

func TestAppendFailsOpenOnStoreErrors(t *testing.T) {
	store := &brokenStore{readErr: errors.New("disk gone"), writeErr: errors.New("disk gone")}
	tr := &scriptedTransport{responses: []*transport.Response{stale("B"), accepted("C")}}
	s := newTestShipper(t, tr, store, 0)

	ack, err := s.Append(context.Background(), testBatch(1))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if tr.requests[0].SequenceToken != "" {
		t.Fatalf("expected unreadable store to send no token, got %q", tr.requests[0].SequenceToken)
	}
	if tr.requests[1].SequenceToken != "B" {
		t.Fatalf("expected in-call token B despite write failure, got %q", tr.requests[1].SequenceToken)
	}
	if ack.NextToken != "C" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if !reflect.DeepEqual(store.writes, []string{"B", "C"}) {
		t.Fatalf("unexpected write attempts %v", store.writes)
	}
}

func TestAppendKeepsOrderAcrossRetries(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{stale("B"), stale("C"), accepted("D")}}
	s := newTestShipper(t, tr, tokenstore.NewMemory(), 0)

	batch := testBatch(5)
	if _, err := s.Append(context.Background(), batch); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for attempt, req := range tr.requests {
		for i, ev := range req.Events {
			want, _ := batch[i].Message()
			if ev.Message != want {
				t.Fatalf("attempt %d event %d: expected %s got %s", attempt+1, i, want, ev.Message)
			}
		}
	}
}

func TestAppendSequentialCallsChainTokens(t *testing.T) {
	tr := &scriptedTransport{responses: []*transport.Response{accepted("A"), accepted("B")}}
	store := tokenstore.NewMemory()
	s := newTestShipper(t, tr, store, 0)

	for i := 0; i < 2; i++ {
		if _, err := s.Append(context.Background(), testBatch(1)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if tr.requests[1].SequenceToken != "A" {
		t.Fatalf("expected second call to present A, got %q", tr.requests[1].SequenceToken)
	}
	if got := storedToken(t, store); got != "B" {
		t.Fatalf("expected B got %q", got)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil, tokenstore.NewMemory(), Options{Group: "g", Stream: "s"}); err == nil {
		t.Fatal("expected error without transport")
	}
	if _, err := New(&scriptedTransport{}, nil, Options{Group: "g", Stream: "s"}); err == nil {
		t.Fatal("expected error without token store")
	}
	if _, err := New(&scriptedTransport{}, tokenstore.NewMemory(), Options{Group: "g"}); err == nil {
		t.Fatal("expected error without stream")
	}
}

type countingTransport struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (c *countingTransport) PutLogEvents(_ context.Context, _ *transport.Request) (*transport.Response, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if n <= seen || c.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return accepted("T" + strconv.Itoa(int(c.calls.Add(1)))), nil
}

func TestAppendSerializesConcurrentCalls(t *testing.T) {
	tr := &countingTransport{}
	s := newTestShipper(t, tr, tokenstore.NewMemory(), 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Append(context.Background(), testBatch(1)); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := tr.maxSeen.Load(); got != 1 {
		t.Fatalf("expected one append in flight at a time, saw %d", got)
	}
	if got := tr.calls.Load(); got != 8 {
		t.Fatalf("expected 8 transmissions got %d", got)
	}
}
