// Package blobstore stores the binary payloads (voice audio, avatar images)
// referenced from the avatar collection.
//
// Every backend implements [Store] and hands out opaque string references.
// The encoding of a reference identifies its backend:
//
//   - a plain filesystem path for [FSStore]
//   - bolt://<key> for [BoltStore], the embedded key/value store
//   - gs://<bucket>/<object> for [GCSStore]
//   - mem://<key> for [MemStore]
//
// [Router] composes several backends behind one [Store] and dispatches reads
// and deletes purely by inspecting the reference, so callers never branch on
// which backend is active.
package blobstore

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownScheme is returned when no backend recognises a reference.
var ErrUnknownScheme = errors.New("blobstore: unknown reference scheme")

// ErrForeignRef is returned when a reference belongs to a different backend.
var ErrForeignRef = errors.New("blobstore: reference not owned by this store")

// Kind classifies a blob. It selects the subdirectory or key prefix used
// when a key is generated.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// IsValid reports whether k is a recognised blob kind.
func (k Kind) IsValid() bool {
	return k == KindAudio || k == KindImage
}

// dir returns the subdirectory (or object prefix) holding blobs of kind k.
func (k Kind) dir() string {
	if k == KindImage {
		return "images"
	}
	return "audio"
}

// Store is the contract shared by all blob backends.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Put stores data and returns its reference. When key is empty a
	// collision-resistant key is generated; a non-empty key is sanitised
	// first and an existing blob under the same key is replaced.
	Put(ctx context.Context, kind Kind, key string, data []byte) (string, error)

	// Get returns the bytes behind ref. A missing blob yields (nil, nil).
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the blob behind ref. Deleting an absent blob succeeds.
	Delete(ctx context.Context, ref string) error

	// Clear removes every blob owned by the store.
	Clear(ctx context.Context) error

	// Owns reports whether ref was issued by this store.
	Owns(ref string) bool
}

// GenerateKey returns a fresh key such as "audio_<uuid>".
func GenerateKey(kind Kind) string {
	return string(kind) + "_" + uuid.NewString()
}

// UniqueKey returns a fresh key that starts with the sanitised prefix and
// keeps its extension, e.g. "laugh_<uuid>.wav" for "laugh.wav". Two calls
// never return the same key. An empty prefix yields [GenerateKey].
func UniqueKey(kind Kind, prefix string) string {
	ext := path.Ext(prefix)
	if len(ext) > maxExtLen {
		ext = ""
	}
	stem := SanitizeKey(strings.TrimSuffix(prefix, ext))
	if ext = SanitizeKey(ext); ext != "" {
		ext = "." + ext
	}
	switch {
	case stem == "" && ext == "":
		return GenerateKey(kind)
	case stem == "":
		stem = string(kind)
	case len(stem) > maxStemLen:
		stem = stem[:maxStemLen]
	}
	return stem + "_" + uuid.NewString() + ext
}

// Bounds for the parts of a [UniqueKey]. Together with the separator and
// the uuid they stay within maxKeyLen.
const (
	maxStemLen = 64
	maxExtLen  = 16
)

// maxKeyLen bounds sanitised keys so they fit every backend's name limits.
const maxKeyLen = 128

// SanitizeKey maps key onto the character set [A-Za-z0-9._-]. Any other rune
// becomes '_', leading dots are dropped, and the result is truncated to 128
// bytes. An empty return value means the caller should generate a key.
func SanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxKeyLen {
		out = out[:maxKeyLen]
	}
	return out
}

// keyOrGenerate returns the sanitised key, or a generated one when nothing
// usable is left after sanitising.
func keyOrGenerate(kind Kind, key string) string {
	if k := SanitizeKey(key); k != "" {
		return k
	}
	return GenerateKey(kind)
}
