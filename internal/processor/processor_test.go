package processor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gosight/perfship/internal/config"
	"github.com/gosight/perfship/internal/storage"
	"github.com/gosight/perfship/internal/transformer"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]storage.PerformanceRow
}

func (w *recordingWriter) InsertPerformance(_ context.Context, rows []storage.PerformanceRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, rows)
	return nil
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func value(t *testing.T, name string) []byte {
	t.Helper()
	data, err := json.Marshal(transformer.ForwardedEvent{
		EventID:   name,
		LogGroup:  "web",
		LogStream: "prod",
		Timestamp: 1700000000000,
		Message:   `{"entry":"Performance","type":"resource","name":"` + name + `","performance":{"start":1,"duration":2}}`,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestFlushOnBatchSize(t *testing.T) {
	w := &recordingWriter{}
	p := NewPerformanceProcessor(w, config.BatchConfig{Size: 2, FlushInterval: time.Hour})
	defer p.Stop()

	ctx := context.Background()
	for _, name := range []string{"a.js", "b.js"} {
		if err := p.Process(ctx, value(t, name)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	if got := w.total(); got != 2 {
		t.Fatalf("expected 2 rows flushed, got %d", got)
	}
}

func TestStopFlushesRemainder(t *testing.T) {
	w := &recordingWriter{}
	p := NewPerformanceProcessor(w, config.BatchConfig{Size: 100, FlushInterval: time.Hour})

	if err := p.Process(context.Background(), value(t, "a.js")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := w.total(); got != 0 {
		t.Fatalf("expected nothing flushed yet, got %d", got)
	}

	p.Stop()
	p.Stop()
	if got := w.total(); got != 1 {
		t.Fatalf("expected 1 row after stop, got %d", got)
	}
}

func TestTickerFlush(t *testing.T) {
	w := &recordingWriter{}
	p := NewPerformanceProcessor(w, config.BatchConfig{Size: 100, FlushInterval: 10 * time.Millisecond})
	defer p.Stop()

	if err := p.Process(context.Background(), value(t, "a.js")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.total() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.total() != 1 {
		t.Fatal("expected ticker to flush the buffered row")
	}
}

func TestProcessSkipsForeignMessages(t *testing.T) {
	w := &recordingWriter{}
	p := NewPerformanceProcessor(w, config.BatchConfig{Size: 1, FlushInterval: time.Hour})
	defer p.Stop()

	data, _ := json.Marshal(transformer.ForwardedEvent{Message: "hello"})
	if err := p.Process(context.Background(), data); err == nil {
		t.Fatal("expected error for non-performance message")
	}
	if w.total() != 0 {
		t.Fatal("expected no rows written")
	}
}
