package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/gosight/perfship/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// PerformanceRow represents a row in the performance_events table
type PerformanceRow struct {
	EventID        string
	LogGroup       string
	LogStream      string
	SequenceToken  string
	Timestamp      time.Time
	EntryType      string
	Name           string
	StartMs        float64
	DurationMs     float64
	Browser        string
	BrowserVersion string
	OS             string
	DeviceType     string
	Country        string
	City           string
	Message        string
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

// EnsureSchema creates the performance_events table when missing.
func (c *ClickHouse) EnsureSchema(ctx context.Context) error {
	return c.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS performance_events (
			event_id        String,
			log_group       LowCardinality(String),
			log_stream      LowCardinality(String),
			sequence_token  String,
			timestamp       DateTime64(3),
			entry_type      LowCardinality(String),
			name            String,
			start_ms        Float64,
			duration_ms     Float64,
			browser         LowCardinality(String),
			browser_version String,
			os              LowCardinality(String),
			device_type     LowCardinality(String),
			country         LowCardinality(String),
			city            String,
			message         String
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (log_group, log_stream, entry_type, timestamp)
	`)
}

func (c *ClickHouse) InsertPerformance(ctx context.Context, rows []PerformanceRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO performance_events (
			event_id, log_group, log_stream, sequence_token, timestamp,
			entry_type, name, start_ms, duration_ms,
			browser, browser_version, os, device_type,
			country, city, message
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.EventID, r.LogGroup, r.LogStream, r.SequenceToken, r.Timestamp,
			r.EntryType, r.Name, r.StartMs, r.DurationMs,
			r.Browser, r.BrowserVersion, r.OS, r.DeviceType,
			r.Country, r.City, r.Message,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
