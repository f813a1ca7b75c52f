package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File stores tokens in a JSON object keyed by stream key. Writes replace
// the file atomically through a rename.
type File struct {
	path string
	key  string
	mu   sync.Mutex
}

func NewFile(path, key string) *File {
	return &File{path: path, key: key}
}

func (f *File) Read(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		return "", false, err
	}
	token, ok := tokens[f.key]
	return token, ok && token != "", nil
}

func (f *File) Write(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		return err
	}
	if token == "" {
		delete(tokens, f.key)
	} else {
		tokens[f.key] = token
	}
	return f.save(tokens)
}

func (f *File) Close() error { return nil }

func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	tokens := map[string]string{}
	if len(data) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return tokens, nil
}

func (f *File) save(tokens map[string]string) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
