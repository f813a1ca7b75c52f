// Package tokenstore persists the continuation token of one log stream.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gosight/perfship/internal/config"
)

// Store holds exactly one continuation token per stream key. Writing the
// empty string clears the token.
type Store interface {
	Read(ctx context.Context) (token string, ok bool, err error)
	Write(ctx context.Context, token string) error
	Close() error
}

var ErrUnknownDriver = errors.New("unknown token store driver")

// Key scopes a token to the stream it guards.
func Key(group, stream string) string {
	return "perfship:token:" + group + "/" + stream
}

// Open returns the store selected by cfg.Driver for the given stream key.
func Open(ctx context.Context, cfg config.TokenStoreConfig, key string) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.Path, key), nil
	}

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "redis":
		s, err = NewRedis(ctx, cfg.Redis, key)
	case "sqlite":
		s, err = OpenSQLite(cfg.Path, key)
	case "pebble":
		s, err = OpenPebble(filepath.Clean(cfg.Path), key)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s token store: %w", cfg.Driver, err)
	}
	return s, nil
}
