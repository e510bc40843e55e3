package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/observe"
)

// NewAvatar describes an avatar to create. Zero Color and Icon pick a random
// palette colour and the default icon.
//
// At most one of Image and ImagePath may be set. Image bytes are written to
// a new blob before the metadata is saved and deleted again if the save
// fails. ImagePath adopts an existing blob and is never deleted on a failed
// save.
type NewAvatar struct {
	Name      string
	Color     avatar.Color
	Icon      avatar.Icon
	Image     []byte
	ImagePath string
}

// AvatarUpdate changes selected fields of an avatar. Nil fields keep their
// value.
type AvatarUpdate struct {
	Name  *string
	Color *avatar.Color
	Icon  *avatar.Icon

	// ClearImage removes the custom image; its blob is deleted once the
	// change is saved.
	ClearImage bool
}

// AddAvatar appends a new avatar with no voices and persists it.
func (r *Repository) AddAvatar(ctx context.Context, in NewAvatar) (_ avatar.Avatar, err error) {
	const op = "AddAvatar"
	ctx, span := observe.StartSpan(ctx, "repository."+op)
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	a := avatar.Avatar{
		ID:        avatar.NewID(),
		Name:      strings.TrimSpace(in.Name),
		Color:     in.Color,
		Icon:      in.Icon,
		ImagePath: strings.TrimSpace(in.ImagePath),
		Voices:    []avatar.Voice{},
	}
	if a.Color == "" {
		a.Color = avatar.RandomColor()
	}
	if a.Icon == "" {
		a.Icon = avatar.DefaultIcon
	}
	if len(in.Image) > 0 && a.ImagePath != "" {
		return avatar.Avatar{}, fmt.Errorf("repository: add avatar: %w: both image bytes and path given", avatar.ErrInvalidArgument)
	}
	if err := avatar.Validate(a); err != nil {
		return avatar.Avatar{}, fmt.Errorf("repository: add avatar: %w", err)
	}
	span.SetAttributes(attribute.String("avatar.id", a.ID))

	r.collMu.RLock()
	defer r.collMu.RUnlock()

	if err := r.Ready(); err != nil {
		return avatar.Avatar{}, fmt.Errorf("repository: add avatar: %w", err)
	}
	var written []string
	if len(in.Image) > 0 {
		ref, err := r.putBlob(ctx, blobstore.KindImage, "", in.Image)
		if err != nil {
			return avatar.Avatar{}, fmt.Errorf("repository: add avatar: %w", err)
		}
		a.ImagePath, written = ref, []string{ref}
	}

	r.mu.Lock()
	gen := r.commitLocked(append(slices.Clone(r.avatars), a))
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.rollback(ctx, op, gen, func(avs []avatar.Avatar) []avatar.Avatar {
			return slices.DeleteFunc(slices.Clone(avs), func(x avatar.Avatar) bool { return x.ID == a.ID })
		}, written...)
		return avatar.Avatar{}, fmt.Errorf("repository: add avatar: %w", err)
	}
	r.notify(op)
	return a.Clone(), nil
}

// UpdateAvatar applies u to the avatar with the given id.
func (r *Repository) UpdateAvatar(ctx context.Context, id string, u AvatarUpdate) (_ avatar.Avatar, err error) {
	const op = "UpdateAvatar"
	ctx, span := observe.StartSpan(ctx, "repository."+op, attribute.String("avatar.id", id))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(id)
	defer unlock()

	before, after, err := r.applyLocked(ctx, op, id, func(a avatar.Avatar) (avatar.Avatar, error) {
		if u.Name != nil {
			a.Name = strings.TrimSpace(*u.Name)
		}
		if u.Color != nil {
			a.Color = *u.Color
		}
		if u.Icon != nil {
			a.Icon = *u.Icon
		}
		if u.ClearImage {
			a.ImagePath = ""
		}
		return a, avatar.Validate(a)
	})
	if err != nil {
		return avatar.Avatar{}, fmt.Errorf("repository: update avatar: %w", err)
	}
	if before.ImagePath != "" && after.ImagePath != before.ImagePath {
		r.schedule(ctx, []string{before.ImagePath})
	}
	r.notify(op)
	return after.Clone(), nil
}

// SetAvatarImage stores data as the avatar's custom image. The previous
// image, if any, is deleted once the change is saved. If the save fails the
// new image is deleted again.
func (r *Repository) SetAvatarImage(ctx context.Context, id string, data []byte) (_ avatar.Avatar, err error) {
	const op = "SetAvatarImage"
	ctx, span := observe.StartSpan(ctx, "repository."+op, attribute.String("avatar.id", id))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	if len(data) == 0 {
		return avatar.Avatar{}, fmt.Errorf("repository: set image: %w: empty image", avatar.ErrInvalidArgument)
	}

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(id)
	defer unlock()

	if err := r.exists(id); err != nil {
		return avatar.Avatar{}, fmt.Errorf("repository: set image: %w", err)
	}
	ref, err := r.putBlob(ctx, blobstore.KindImage, "", data)
	if err != nil {
		return avatar.Avatar{}, fmt.Errorf("repository: set image: %w", err)
	}

	before, after, err := r.applyLocked(ctx, op, id, func(a avatar.Avatar) (avatar.Avatar, error) {
		a.ImagePath = ref
		return a, nil
	}, ref)
	if err != nil {
		return avatar.Avatar{}, fmt.Errorf("repository: set image: %w", err)
	}
	if before.ImagePath != "" {
		r.schedule(ctx, []string{before.ImagePath})
	}
	r.notify(op)
	return after.Clone(), nil
}

// RemoveAvatar deletes the avatar with the given id. The removal is saved
// first; if that fails the avatar is put back at its position, the
// selection is restored, and no blob is touched. Once saved, the avatar's
// audio and image blobs are deleted in the background.
func (r *Repository) RemoveAvatar(ctx context.Context, id string) (err error) {
	const op = "RemoveAvatar"
	ctx, span := observe.StartSpan(ctx, "repository."+op, attribute.String("avatar.id", id))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	if !r.deleting.CompareAndSwap(false, true) {
		return fmt.Errorf("repository: remove avatar: %w", avatar.ErrDeleteInProgress)
	}
	defer r.deleting.Store(false)

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(id)
	defer unlock()

	r.mu.Lock()
	if err := r.readyLocked(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("repository: remove avatar: %w", err)
	}
	idx := avatar.IndexOf(r.avatars, id)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("repository: remove avatar %q: %w", id, avatar.ErrNotFound)
	}
	removed := r.avatars[idx]
	wasSelected := r.selected == id
	if wasSelected {
		r.selected = ""
	}
	gen := r.commitLocked(slices.Delete(slices.Clone(r.avatars), idx, idx+1))
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.rollback(ctx, op, gen, func(avs []avatar.Avatar) []avatar.Avatar {
			return slices.Insert(slices.Clone(avs), min(idx, len(avs)), removed)
		})
		if wasSelected {
			r.mu.Lock()
			if r.selected == "" {
				r.selected = id
			}
			r.mu.Unlock()
		}
		return fmt.Errorf("repository: remove avatar: %w", err)
	}

	r.schedule(ctx, removed.BlobRefs())
	r.notify(op)
	return nil
}

// DeleteAll empties the collection. On a failed save the previous
// collection and selection are restored. Once saved, every blob it
// referenced is deleted in the background. DeleteAll also works when the
// last Load failed, as a way to start over.
func (r *Repository) DeleteAll(ctx context.Context) (err error) {
	const op = "DeleteAll"
	ctx, span := observe.StartSpan(ctx, "repository."+op)
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	if !r.deleting.CompareAndSwap(false, true) {
		return fmt.Errorf("repository: delete all: %w", avatar.ErrDeleteInProgress)
	}
	defer r.deleting.Store(false)

	r.collMu.Lock()
	defer r.collMu.Unlock()

	r.mu.Lock()
	prev, prevSelected, prevState, prevErr := r.avatars, r.selected, r.state, r.lastErr
	var refs []string
	for _, a := range prev {
		refs = append(refs, a.BlobRefs()...)
	}
	gen := r.commitLocked([]avatar.Avatar{})
	r.selected = ""
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.rollback(ctx, op, gen, func([]avatar.Avatar) []avatar.Avatar { return prev })
		r.mu.Lock()
		r.selected, r.state, r.lastErr = prevSelected, prevState, prevErr
		r.mu.Unlock()
		return fmt.Errorf("repository: delete all: %w", err)
	}

	r.mu.Lock()
	r.state, r.lastErr = StateReady, nil
	r.mu.Unlock()

	r.schedule(ctx, refs)
	observe.Logger(ctx).Info("collection deleted", "avatars", len(prev), "blobs", len(refs))
	r.notify(op)
	return nil
}

// exists reports ErrNotReady or ErrNotFound for id.
func (r *Repository) exists(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readyLocked(); err != nil {
		return err
	}
	if avatar.IndexOf(r.avatars, id) < 0 {
		return fmt.Errorf("avatar %q: %w", id, avatar.ErrNotFound)
	}
	return nil
}

// applyLocked replaces avatar id with apply(copy) and persists, reverting on
// failure. The caller must hold the avatar lock and a read lock on collMu.
// before and after are the avatar around the change. orphans are blobs
// written for the change; they are deleted when the change is not saved.
func (r *Repository) applyLocked(ctx context.Context, op, id string, apply func(avatar.Avatar) (avatar.Avatar, error), orphans ...string) (before, after avatar.Avatar, err error) {
	r.mu.Lock()
	idx := -1
	if err = r.readyLocked(); err == nil {
		if idx = avatar.IndexOf(r.avatars, id); idx < 0 {
			err = fmt.Errorf("avatar %q: %w", id, avatar.ErrNotFound)
		} else {
			before = r.avatars[idx]
			after, err = apply(before.Clone())
		}
	}
	if err != nil {
		r.mu.Unlock()
		for _, ref := range orphans {
			r.discardBlob(ctx, ref)
		}
		return before, after, err
	}
	gen := r.commitLocked(replaceAt(r.avatars, idx, after))
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.rollback(ctx, op, gen, func(avs []avatar.Avatar) []avatar.Avatar {
			i := avatar.IndexOf(avs, id)
			if i < 0 {
				return avs
			}
			return replaceAt(avs, i, before)
		}, orphans...)
		return before, before, err
	}
	return before, after, nil
}
