package blobstore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/soundboard/internal/blobstore"
)

// backends returns a fresh instance of every local backend.
func backends(t *testing.T) map[string]blobstore.Store {
	t.Helper()

	fs, err := blobstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	bolt, err := blobstore.OpenBoltStore(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]blobstore.Store{
		"fs":   fs,
		"bolt": bolt,
		"mem":  blobstore.NewMemStore(),
	}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			payload := []byte("RIFF....WAVEfmt ")
			ref, err := s.Put(ctx, blobstore.KindAudio, "", payload)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if !s.Owns(ref) {
				t.Fatalf("Owns(%q) = false for a ref it issued", ref)
			}

			got, err := s.Get(ctx, ref)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("Get = %q, want %q", got, payload)
			}

			// Delete twice: absence is not a failure.
			for i := range 2 {
				if err := s.Delete(ctx, ref); err != nil {
					t.Fatalf("Delete #%d: %v", i+1, err)
				}
			}

			got, err = s.Get(ctx, ref)
			if err != nil {
				t.Fatalf("Get after delete: %v", err)
			}
			if got != nil {
				t.Fatalf("Get after delete = %q, want nil", got)
			}
		})
	}
}

func TestStoreGeneratedKeysAreUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			seen := make(map[string]bool)
			for range 50 {
				ref, err := s.Put(ctx, blobstore.KindImage, "", []byte{1})
				if err != nil {
					t.Fatalf("Put: %v", err)
				}
				if seen[ref] {
					t.Fatalf("duplicate ref %q", ref)
				}
				seen[ref] = true
				if !strings.Contains(ref, "image_") {
					t.Errorf("generated ref %q lacks the image_ prefix", ref)
				}
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			a, _ := s.Put(ctx, blobstore.KindAudio, "a", []byte("a"))
			b, _ := s.Put(ctx, blobstore.KindImage, "b", []byte("b"))
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			for _, ref := range []string{a, b} {
				got, err := s.Get(ctx, ref)
				if err != nil || got != nil {
					t.Errorf("Get(%q) after Clear = (%q, %v), want (nil, nil)", ref, got, err)
				}
			}
		})
	}
}

func TestFSStoreLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	s, err := blobstore.NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	ref, err := s.Put(ctx, blobstore.KindAudio, "../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if filepath.Dir(ref) != filepath.Join(root, "audio") {
		t.Fatalf("blob written outside the audio directory: %q", ref)
	}

	// A second Put reuses the lazily created directory.
	if _, err := s.Put(ctx, blobstore.KindAudio, "", []byte("y")); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "audio"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %q", e.Name())
		}
	}

	outside := filepath.Join(root, "prefs.json")
	if s.Owns(outside) {
		t.Errorf("Owns(%q) = true for a file outside the kind directories", outside)
	}
	if err := s.Delete(ctx, outside); !errors.Is(err, blobstore.ErrForeignRef) {
		t.Errorf("Delete outside root: expected ErrForeignRef, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"laugh.m4a", "laugh.m4a"},
		{"../secret", "_secret"},
		{"my voice!.wav", "my_voice_.wav"},
		{"...", ""},
		{"", ""},
		{"a/b\\c", "a_b_c"},
	}
	for _, tc := range tests {
		if got := blobstore.SanitizeKey(tc.in); got != tc.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := strings.Repeat("x", 300)
	if got := blobstore.SanitizeKey(long); len(got) != 128 {
		t.Errorf("SanitizeKey(long) length = %d, want 128", len(got))
	}
}

func TestUniqueKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, prefix       string
		wantPrefix, suffix string
	}{
		{name: "keeps extension", prefix: "laugh.wav", wantPrefix: "laugh_", suffix: ".wav"},
		{name: "sanitises prefix", prefix: "my voice!.m4a", wantPrefix: "my_voice__", suffix: ".m4a"},
		{name: "no extension", prefix: "clip", wantPrefix: "clip_"},
		{name: "empty prefix generates", prefix: "", wantPrefix: "audio_"},
		{name: "long extension dropped", prefix: "a." + strings.Repeat("x", 40), wantPrefix: "a.xxx"},
		{name: "long stem truncated", prefix: strings.Repeat("s", 300) + ".ogg", wantPrefix: strings.Repeat("s", 64) + "_", suffix: ".ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := blobstore.UniqueKey(blobstore.KindAudio, tt.prefix)
			b := blobstore.UniqueKey(blobstore.KindAudio, tt.prefix)
			if a == b {
				t.Errorf("two keys for %q are both %q", tt.prefix, a)
			}
			if !strings.HasPrefix(a, tt.wantPrefix) || !strings.HasSuffix(a, tt.suffix) {
				t.Errorf("UniqueKey(%q) = %q, want prefix %q and suffix %q", tt.prefix, a, tt.wantPrefix, tt.suffix)
			}
			if len(a) > 128 {
				t.Errorf("UniqueKey(%q) length = %d", tt.prefix, len(a))
			}
			if blobstore.SanitizeKey(a) != a {
				t.Errorf("UniqueKey(%q) = %q is not a sanitised key", tt.prefix, a)
			}
		})
	}
}

func TestRouterDispatchesByScheme(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := blobstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	mem := blobstore.NewMemStore()
	r := blobstore.NewRouter(mem, fs)

	memRef, err := r.Put(ctx, blobstore.KindAudio, "", []byte("primary"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(memRef, blobstore.MemScheme) {
		t.Fatalf("Put went to %q, want the primary mem store", memRef)
	}

	fsRef, err := fs.Put(ctx, blobstore.KindAudio, "legacy", []byte("legacy"))
	if err != nil {
		t.Fatalf("fs Put: %v", err)
	}

	got, err := r.Get(ctx, fsRef)
	if err != nil || string(got) != "legacy" {
		t.Fatalf("Get(fsRef) = (%q, %v), want legacy", got, err)
	}
	if err := r.Delete(ctx, fsRef); err != nil {
		t.Fatalf("Delete(fsRef): %v", err)
	}
	if _, err := os.Stat(fsRef); !os.IsNotExist(err) {
		t.Fatalf("file still present after routed delete: %v", err)
	}

	if err := r.Delete(ctx, "ftp://elsewhere/x"); !errors.Is(err, blobstore.ErrUnknownScheme) {
		t.Fatalf("Delete(unknown): expected ErrUnknownScheme, got %v", err)
	}
}
