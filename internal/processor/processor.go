package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/perfship/internal/config"
	"github.com/gosight/perfship/internal/metrics"
	"github.com/gosight/perfship/internal/storage"
	"github.com/gosight/perfship/internal/transformer"
)

// RowWriter persists performance rows.
type RowWriter interface {
	InsertPerformance(ctx context.Context, rows []storage.PerformanceRow) error
}

// PerformanceProcessor buffers performance rows and writes them in batches
type PerformanceProcessor struct {
	writer   RowWriter
	batchCfg config.BatchConfig

	buffer []storage.PerformanceRow

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewPerformanceProcessor creates a processor and starts its flush ticker
func NewPerformanceProcessor(writer RowWriter, batchCfg config.BatchConfig) *PerformanceProcessor {
	if batchCfg.Size <= 0 {
		batchCfg.Size = 1000
	}
	if batchCfg.FlushInterval <= 0 {
		batchCfg.FlushInterval = 5 * time.Second
	}

	p := &PerformanceProcessor{
		writer:   writer,
		batchCfg: batchCfg,
		buffer:   make([]storage.PerformanceRow, 0, batchCfg.Size),
		done:     make(chan struct{}),
	}

	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process decodes a single forwarded event
func (p *PerformanceProcessor) Process(ctx context.Context, value []byte) error {
	row, err := transformer.TransformEvent(value)
	if err != nil {
		metrics.AddProcessorRows("skipped", 1)
		return err
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, *row)
	shouldFlush := len(p.buffer) >= p.batchCfg.Size
	p.mu.Unlock()

	if shouldFlush {
		p.Flush()
	}

	return nil
}

func (p *PerformanceProcessor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered rows to the writer
func (p *PerformanceProcessor) Flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	rows := p.buffer
	p.buffer = make([]storage.PerformanceRow, 0, p.batchCfg.Size)
	p.mu.Unlock()

	start := time.Now()
	if err := p.writer.InsertPerformance(context.Background(), rows); err != nil {
		metrics.AddProcessorRows("error", len(rows))
		log.Error().Err(err).Int("count", len(rows)).Msg("Failed to insert performance rows")
		return
	}

	metrics.AddProcessorRows("ok", len(rows))
	log.Info().
		Int("count", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Flushed performance rows to ClickHouse")
}

// Stop stops the ticker and flushes what is left
func (p *PerformanceProcessor) Stop() {
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.done)
		p.Flush()
	})
}
