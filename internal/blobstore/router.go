package blobstore

import (
	"context"
	"errors"
	"fmt"
)

// Compile-time interface check.
var _ Store = (*Router)(nil)

// Router presents several backends as one [Store]. New blobs always go to the
// primary backend; reads and deletes go to whichever backend owns the
// reference. This lets a collection written under one storage profile keep
// working after the profile changes.
type Router struct {
	primary  Store
	backends []Store
}

// NewRouter returns a Router writing to primary and resolving references
// against primary first, then others in order.
func NewRouter(primary Store, others ...Store) *Router {
	backends := make([]Store, 0, 1+len(others))
	backends = append(backends, primary)
	for _, o := range others {
		if o != nil {
			backends = append(backends, o)
		}
	}
	return &Router{primary: primary, backends: backends}
}

// Primary returns the backend receiving new blobs.
func (r *Router) Primary() Store { return r.primary }

// Put implements [Store.Put] on the primary backend.
func (r *Router) Put(ctx context.Context, kind Kind, key string, data []byte) (string, error) {
	return r.primary.Put(ctx, kind, key, data)
}

// Get implements [Store.Get].
func (r *Router) Get(ctx context.Context, ref string) ([]byte, error) {
	b, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, ref)
}

// Delete implements [Store.Delete].
func (r *Router) Delete(ctx context.Context, ref string) error {
	b, err := r.resolve(ref)
	if err != nil {
		return err
	}
	return b.Delete(ctx, ref)
}

// Clear implements [Store.Clear] on every backend.
func (r *Router) Clear(ctx context.Context) error {
	var errs []error
	for _, b := range r.backends {
		if err := b.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Owns implements [Store.Owns].
func (r *Router) Owns(ref string) bool {
	_, err := r.resolve(ref)
	return err == nil
}

func (r *Router) resolve(ref string) (Store, error) {
	for _, b := range r.backends {
		if b.Owns(ref) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, ref)
}
