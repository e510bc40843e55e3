package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time interface check.
var _ Store = (*FSStore)(nil)

// FSStore keeps blobs as files below a root directory, one subdirectory per
// [Kind]. Subdirectories are created lazily on the first Put. References
// are absolute file paths.
type FSStore struct {
	root string
}

// NewFSStore returns an [FSStore] rooted at root. The directory does not
// need to exist yet.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve root %q: %w", root, err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string { return s.root }

// Put implements [Store.Put]. Data is written to a temp file in the target
// directory and renamed into place, so readers never see a partial blob.
func (s *FSStore) Put(ctx context.Context, kind Kind, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !kind.IsValid() {
		return "", fmt.Errorf("blobstore: invalid kind %q", kind)
	}
	dir := filepath.Join(s.root, kind.dir())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("blobstore: create %s directory: %w", kind, err)
	}

	f, err := os.CreateTemp(dir, ".*.tmp")
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", errors.Join(fmt.Errorf("blobstore: write temp file: %w", err), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return "", errors.Join(fmt.Errorf("blobstore: close temp file: %w", err), os.Remove(tmp))
	}

	target := filepath.Join(dir, keyOrGenerate(kind, key))
	if err := os.Rename(tmp, target); err != nil {
		return "", errors.Join(fmt.Errorf("blobstore: rename blob into place: %w", err), os.Remove(tmp))
	}
	return target, nil
}

// Get implements [Store.Get].
func (s *FSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Owns(ref) {
		return nil, fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("blobstore: read %q: %w", ref, err)
	}
	return data, nil
}

// Delete implements [Store.Delete]. A missing file is not an error.
func (s *FSStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Owns(ref) {
		return fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blobstore: delete %q: %w", ref, err)
	}
	return nil
}

// Clear implements [Store.Clear]. Only the per-kind subdirectories are
// removed; other files below the root are left alone.
func (s *FSStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	for _, k := range []Kind{KindAudio, KindImage} {
		if err := os.RemoveAll(filepath.Join(s.root, k.dir())); err != nil {
			errs = append(errs, fmt.Errorf("blobstore: clear %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Owns reports whether ref is an absolute path inside one of the store's
// kind directories.
func (s *FSStore) Owns(ref string) bool {
	if ref == "" || !filepath.IsAbs(ref) {
		return false
	}
	rel, err := filepath.Rel(s.root, filepath.Clean(ref))
	if err != nil {
		return false
	}
	dir, name, ok := strings.Cut(filepath.ToSlash(rel), "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return false
	}
	return dir == KindAudio.dir() || dir == KindImage.dir()
}
