package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Pebble keeps tokens in an embedded Pebble database. Every write is synced
// to the WAL before it returns.
type Pebble struct {
	db  *pebble.DB
	key []byte
}

func OpenPebble(dir, key string) (*Pebble, error) {
	if dir == "" {
		return nil, errors.New("pebble: data dir is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Pebble{db: db, key: []byte(key)}, nil
}

func (p *Pebble) Read(_ context.Context) (string, bool, error) {
	val, closer, err := p.db.Get(p.key)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()

	token := string(val)
	return token, token != "", nil
}

func (p *Pebble) Write(_ context.Context, token string) error {
	if token == "" {
		return p.db.Delete(p.key, pebble.Sync)
	}
	return p.db.Set(p.key, []byte(token), pebble.Sync)
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
