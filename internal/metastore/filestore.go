package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore keeps preferences in a flat JSON object of string values, the
// collection document being one of them. Every write replaces the whole file
// through a temp file and rename, so a failed save leaves the previous
// contents intact. Unrelated keys in the file are preserved.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the file at path. The file and its
// parent directory are created on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the preference file location.
func (s *FileStore) Path() string { return s.path }

// Save implements [Store.Save].
func (s *FileStore) Save(ctx context.Context, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil && !errors.Is(err, avatar.ErrDecode) {
		return err
	}
	if prefs == nil {
		// Unreadable or absent: start over rather than fail every save.
		prefs = make(map[string]string)
	}
	prefs[DocumentKey] = string(doc)
	prefs[SyncKey] = nowFunc().UTC().Format(time.RFC3339Nano)
	return s.write(prefs)
}

// Load implements [Store.Load].
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		return nil, err
	}
	doc, ok := prefs[DocumentKey]
	if !ok {
		return nil, nil
	}
	return []byte(doc), nil
}

// Clear implements [Store.Clear].
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil && !errors.Is(err, avatar.ErrDecode) {
		return err
	}
	if prefs == nil {
		prefs = make(map[string]string)
	}
	delete(prefs, DocumentKey)
	delete(prefs, SyncKey)
	return s.write(prefs)
}

// LastSync implements [Store.LastSync].
func (s *FileStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		return time.Time{}, false, err
	}
	raw, ok := prefs[SyncKey]
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metastore: parse %s: %w", SyncKey, err)
	}
	return t, true, nil
}

// read returns the preference map. A missing file yields an empty map; a
// file that is not a JSON object yields an error wrapping avatar.ErrDecode.
func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("metastore: read %q: %w", s.path, err)
	}
	prefs := make(map[string]string)
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("metastore: parse %q: %w: %w", s.path, avatar.ErrDecode, err)
	}
	return prefs, nil
}

func (s *FileStore) write(prefs map[string]string) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("metastore: encode preferences: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("metastore: create %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".prefs-*.tmp")
	if err != nil {
		return fmt.Errorf("metastore: create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Join(fmt.Errorf("metastore: write temp file: %w", err), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Join(fmt.Errorf("metastore: sync temp file: %w", err), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("metastore: close temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Join(fmt.Errorf("metastore: replace %q: %w", s.path, err), os.Remove(tmp))
	}
	return nil
}
