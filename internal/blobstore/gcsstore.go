package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSScheme prefixes references issued by [GCSStore].
const GCSScheme = "gs://"

// Compile-time interface check.
var _ Store = (*GCSStore)(nil)

// GCSStore keeps blobs as objects in a Cloud Storage bucket. Objects are
// named <kind dir>/<key>; references look like gs://<bucket>/audio/<key>.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a Cloud Storage client using application default
// credentials and returns a store for bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("blobstore: gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func contentType(kind Kind) string {
	if kind == KindImage {
		return "image/png"
	}
	return "audio/mp4"
}

// Put implements [Store.Put].
func (s *GCSStore) Put(ctx context.Context, kind Kind, key string, data []byte) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("blobstore: invalid kind %q", kind)
	}
	name := kind.dir() + "/" + keyOrGenerate(kind, key)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType(kind)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("blobstore: write object %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("blobstore: finalise object %q: %w", name, err)
	}
	return GCSScheme + s.bucket + "/" + name, nil
}

// Get implements [Store.Get].
func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	name, err := s.objectName(ref)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("blobstore: open object %q: %w", name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read object %q: %w", name, err)
	}
	return data, nil
}

// Delete implements [Store.Delete].
func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	name, err := s.objectName(ref)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("blobstore: delete object %q: %w", name, err)
	}
	return nil
}

// Clear implements [Store.Clear]. Only objects below the kind prefixes are
// deleted.
func (s *GCSStore) Clear(ctx context.Context) error {
	bkt := s.client.Bucket(s.bucket)
	var errs []error
	for _, k := range []Kind{KindAudio, KindImage} {
		it := bkt.Objects(ctx, &storage.Query{Prefix: k.dir() + "/"})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("blobstore: list %s objects: %w", k, err))
				break
			}
			if err := bkt.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
				errs = append(errs, fmt.Errorf("blobstore: delete object %q: %w", attrs.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Owns implements [Store.Owns]. Only references into this store's bucket
// are accepted.
func (s *GCSStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, GCSScheme+s.bucket+"/")
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) objectName(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, GCSScheme+s.bucket+"/")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	return name, nil
}
