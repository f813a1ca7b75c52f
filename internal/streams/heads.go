// Package streams tracks the head sequence token of every log stream held by
// the sink.
package streams

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Heads advances stream heads. Advance succeeds only when presented equals
// the current head token; an empty stream has the empty token. On mismatch it
// returns the current head and ok=false.
type Heads interface {
	Advance(ctx context.Context, stream string, presented string) (head string, ok bool, err error)
	Close() error
}

// Key identifies a stream across log groups.
func Key(group, stream string) string {
	return group + "/" + stream
}

// FormatToken renders a batch sequence number as a token.
func FormatToken(seq uint64) string {
	if seq == 0 {
		return ""
	}
	return fmt.Sprintf("%020d", seq)
}

// ParseToken is the inverse of FormatToken. ok is false for tokens this sink
// never issued.
func ParseToken(token string) (uint64, bool) {
	if token == "" {
		return 0, true
	}
	if len(token) != 20 {
		return 0, false
	}
	seq, err := strconv.ParseUint(token, 10, 64)
	if err != nil || seq == 0 {
		return 0, false
	}
	return seq, true
}

// MemoryHeads keeps heads in process memory.
type MemoryHeads struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func NewMemoryHeads() *MemoryHeads {
	return &MemoryHeads{seqs: make(map[string]uint64)}
}

func (m *MemoryHeads) Advance(_ context.Context, stream string, presented string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.seqs[stream]
	seq, valid := ParseToken(presented)
	if !valid || seq != cur {
		return FormatToken(cur), false, nil
	}

	cur++
	m.seqs[stream] = cur
	return FormatToken(cur), true, nil
}

func (m *MemoryHeads) Close() error { return nil }
