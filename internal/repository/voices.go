package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/observe"
)

// NewVoice describes a voice to append to an avatar.
//
// Either Audio or AudioRef must be set. Audio bytes are written to a new
// blob before the metadata is saved; Key, when set, is the prefix of its
// key (see [blobstore.UniqueKey]), so an existing blob is never replaced.
// AudioRef adopts a blob that already exists; it is never deleted on a
// failed save.
type NewVoice struct {
	Name     string
	Audio    []byte
	AudioRef string
	Key      string
	Duration time.Duration
	Category string
	Color    *avatar.Color
}

// VoiceUpdate renames or recategorises a voice. Nil fields keep their value.
// A blank category resets it to [avatar.DefaultCategory].
type VoiceUpdate struct {
	Name     *string
	Category *string
}

// AddVoice appends a voice to the avatar and persists it. When the save
// fails the voice is removed again and a freshly written blob is deleted.
func (r *Repository) AddVoice(ctx context.Context, avatarID string, in NewVoice) (_ avatar.Voice, err error) {
	const op = "AddVoice"
	ctx, span := observe.StartSpan(ctx, "repository."+op, attribute.String("avatar.id", avatarID))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	v := avatar.Voice{
		ID:        avatar.NewID(),
		Name:      strings.TrimSpace(in.Name),
		AudioRef:  in.AudioRef,
		Duration:  in.Duration,
		CreatedAt: r.now().UTC(),
		Category:  strings.TrimSpace(in.Category),
		Color:     in.Color,
	}
	if v.Category == "" {
		v.Category = avatar.DefaultCategory
	}
	switch {
	case !avatar.ValidName(v.Name):
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w: name must not be empty", avatar.ErrInvalidArgument)
	case len(in.Audio) == 0 && in.AudioRef == "":
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w: no audio", avatar.ErrInvalidArgument)
	case len(in.Audio) > 0 && in.AudioRef != "":
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w: both audio bytes and reference given", avatar.ErrInvalidArgument)
	case v.Duration < 0:
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w: negative duration", avatar.ErrInvalidArgument)
	case v.Color != nil && !v.Color.IsValid():
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w: color %q is not in the palette", avatar.ErrInvalidArgument, *v.Color)
	}
	span.SetAttributes(attribute.String("voice.id", v.ID))

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(avatarID)
	defer unlock()

	if err := r.exists(avatarID); err != nil {
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w", err)
	}
	var written []string
	if len(in.Audio) > 0 {
		ref, err := r.putBlob(ctx, blobstore.KindAudio, blobstore.UniqueKey(blobstore.KindAudio, in.Key), in.Audio)
		if err != nil {
			return avatar.Voice{}, fmt.Errorf("repository: add voice: %w", err)
		}
		v.AudioRef, written = ref, []string{ref}
	}

	_, _, err = r.applyLocked(ctx, op, avatarID, func(a avatar.Avatar) (avatar.Avatar, error) {
		a.Voices = append(a.Voices, v)
		return a, nil
	}, written...)
	if err != nil {
		return avatar.Voice{}, fmt.Errorf("repository: add voice: %w", err)
	}
	r.notify(op)
	return v.Clone(), nil
}

// UpdateVoice renames or recategorises a voice.
func (r *Repository) UpdateVoice(ctx context.Context, avatarID, voiceID string, u VoiceUpdate) (avatar.Voice, error) {
	return r.mutateVoice(ctx, "UpdateVoice", avatarID, voiceID, func(v *avatar.Voice) error {
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if !avatar.ValidName(name) {
				return fmt.Errorf("%w: name must not be empty", avatar.ErrInvalidArgument)
			}
			v.Name = name
		}
		if u.Category != nil {
			v.Category = strings.TrimSpace(*u.Category)
			if v.Category == "" {
				v.Category = avatar.DefaultCategory
			}
		}
		return nil
	})
}

// UpdateVoiceColor overrides the voice colour. A nil color falls back to the
// avatar's colour.
func (r *Repository) UpdateVoiceColor(ctx context.Context, avatarID, voiceID string, color *avatar.Color) (avatar.Voice, error) {
	return r.mutateVoice(ctx, "UpdateVoiceColor", avatarID, voiceID, func(v *avatar.Voice) error {
		if color == nil {
			v.Color = nil
			return nil
		}
		if !color.IsValid() {
			return fmt.Errorf("%w: color %q is not in the palette", avatar.ErrInvalidArgument, *color)
		}
		c := *color
		v.Color = &c
		return nil
	})
}

// TrackUsage records one playback: PlayCount grows by one and LastPlayed is
// set to now.
func (r *Repository) TrackUsage(ctx context.Context, avatarID, voiceID string) (avatar.Voice, error) {
	return r.mutateVoice(ctx, "TrackUsage", avatarID, voiceID, func(v *avatar.Voice) error {
		now := r.now().UTC()
		v.PlayCount++
		v.LastPlayed = &now
		return nil
	})
}

// ResetUsage clears the play statistics of a voice.
func (r *Repository) ResetUsage(ctx context.Context, avatarID, voiceID string) (avatar.Voice, error) {
	return r.mutateVoice(ctx, "ResetUsage", avatarID, voiceID, func(v *avatar.Voice) error {
		v.PlayCount = 0
		v.LastPlayed = nil
		return nil
	})
}

// RemoveVoice removes a voice and, once the removal is saved, deletes its
// audio in the background. On a failed save the voice is restored and no
// blob is touched.
func (r *Repository) RemoveVoice(ctx context.Context, avatarID, voiceID string) (err error) {
	const op = "RemoveVoice"
	ctx, span := observe.StartSpan(ctx, "repository."+op,
		attribute.String("avatar.id", avatarID), attribute.String("voice.id", voiceID))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(avatarID)
	defer unlock()

	var ref string
	_, _, err = r.applyLocked(ctx, op, avatarID, func(a avatar.Avatar) (avatar.Avatar, error) {
		i := a.VoiceIndex(voiceID)
		if i < 0 {
			return a, fmt.Errorf("voice %q: %w", voiceID, avatar.ErrNotFound)
		}
		ref = a.Voices[i].AudioRef
		a.Voices = slices.Delete(a.Voices, i, i+1)
		return a, nil
	})
	if err != nil {
		return fmt.Errorf("repository: remove voice: %w", err)
	}
	if ref != "" {
		r.schedule(ctx, []string{ref})
	}
	r.notify(op)
	return nil
}

// RemoveAllVoices empties the avatar's voice list and deletes the audio of
// every removed voice once the change is saved.
func (r *Repository) RemoveAllVoices(ctx context.Context, avatarID string) (err error) {
	const op = "RemoveAllVoices"
	ctx, span := observe.StartSpan(ctx, "repository."+op, attribute.String("avatar.id", avatarID))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(avatarID)
	defer unlock()

	before, _, err := r.applyLocked(ctx, op, avatarID, func(a avatar.Avatar) (avatar.Avatar, error) {
		a.Voices = []avatar.Voice{}
		return a, nil
	})
	if err != nil {
		return fmt.Errorf("repository: remove all voices: %w", err)
	}
	refs := make([]string, 0, len(before.Voices))
	for _, v := range before.Voices {
		if v.AudioRef != "" {
			refs = append(refs, v.AudioRef)
		}
	}
	r.schedule(ctx, refs)
	r.notify(op)
	return nil
}

// ReorderVoices moves the voice at oldIndex to position newIndex of the
// resulting list. newIndex may equal the list length, which moves the voice
// to the end.
func (r *Repository) ReorderVoices(ctx context.Context, avatarID string, oldIndex, newIndex int) (err error) {
	const op = "ReorderVoices"
	ctx, span := observe.StartSpan(ctx, "repository."+op, attribute.String("avatar.id", avatarID),
		attribute.Int("index.old", oldIndex), attribute.Int("index.new", newIndex))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(avatarID)
	defer unlock()

	_, _, err = r.applyLocked(ctx, op, avatarID, func(a avatar.Avatar) (avatar.Avatar, error) {
		n := len(a.Voices)
		if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex > n {
			return a, fmt.Errorf("%w: %w: move %d to %d with %d voices",
				avatar.ErrInvalidArgument, avatar.ErrIndexOutOfRange, oldIndex, newIndex, n)
		}
		a.Voices = moveVoice(a.Voices, oldIndex, newIndex)
		return a, nil
	})
	if err != nil {
		return fmt.Errorf("repository: reorder voices: %w", err)
	}
	r.notify(op)
	return nil
}

// moveVoice removes the voice at from and inserts it at to. A target past
// the last slot of the shortened list is pulled back by one.
func moveVoice(voices []avatar.Voice, from, to int) []avatar.Voice {
	if to > from && to == len(voices) {
		to--
	}
	v := voices[from]
	voices = slices.Delete(voices, from, from+1)
	return slices.Insert(voices, to, v)
}

// mutateVoice applies fn to a copy of one voice and persists the change.
func (r *Repository) mutateVoice(ctx context.Context, op, avatarID, voiceID string, fn func(*avatar.Voice) error) (_ avatar.Voice, err error) {
	ctx, span := observe.StartSpan(ctx, "repository."+op,
		attribute.String("avatar.id", avatarID), attribute.String("voice.id", voiceID))
	defer func() { observe.EndSpan(span, err) }()
	defer func() { r.finish(ctx, op, err) }()

	r.collMu.RLock()
	defer r.collMu.RUnlock()
	unlock := r.avatarMu.Lock(avatarID)
	defer unlock()

	var out avatar.Voice
	_, _, err = r.applyLocked(ctx, op, avatarID, func(a avatar.Avatar) (avatar.Avatar, error) {
		i := a.VoiceIndex(voiceID)
		if i < 0 {
			return a, fmt.Errorf("voice %q: %w", voiceID, avatar.ErrNotFound)
		}
		if err := fn(&a.Voices[i]); err != nil {
			return a, err
		}
		out = a.Voices[i].Clone()
		return a, nil
	})
	if err != nil {
		return avatar.Voice{}, fmt.Errorf("repository: %s: %w", strings.ToLower(op[:1])+op[1:], err)
	}
	r.notify(op)
	return out, nil
}
