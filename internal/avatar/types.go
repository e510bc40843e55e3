// Package avatar defines the entity graph managed by the soundboard: an
// ordered collection of [Avatar] personas, each owning an ordered list of
// [Voice] clips whose bytes live in a blob store.
//
// Values in this package are immutable by convention. Mutations build a new
// value via the copy helpers ([Avatar.Clone], [Avatar.WithVoices], ...) so a
// reader holding a previous snapshot never observes a change.
package avatar

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCategory is assigned to voices created without a category.
const DefaultCategory = "Uncategorized"

// Avatar is a named persona owning an ordered list of voices.
type Avatar struct {
	// ID is an opaque unique identifier, immutable after creation.
	ID string

	// Name is the non-empty display name.
	Name string

	// Color is one of the fixed [Palette] colours.
	Color Color

	// Icon is the symbolic icon shown when no custom image is set.
	Icon Icon

	// ImagePath is an optional blob reference to a custom image. Empty means
	// the icon is used.
	ImagePath string

	// Voices is ordered; insertion order drives display and reordering.
	Voices []Voice
}

// Voice is one audio recording belonging to exactly one Avatar.
type Voice struct {
	// ID is an opaque unique identifier, immutable after creation.
	ID string

	// Name is the non-empty display name.
	Name string

	// AudioRef is the blob store reference holding the audio bytes. It is
	// never empty once the voice has been persisted.
	AudioRef string

	// Duration is the playback length. Never negative.
	Duration time.Duration

	// CreatedAt is the immutable creation timestamp.
	CreatedAt time.Time

	// Category is a free-text tag; defaults to [DefaultCategory].
	Category string

	// PlayCount only grows, except through an explicit usage reset.
	PlayCount int

	// LastPlayed is set exactly when PlayCount increments.
	LastPlayed *time.Time

	// Color optionally overrides the owning avatar's colour.
	Color *Color
}

// NewID returns a fresh collision-resistant identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of a. The voices slice and every pointer field
// are copied so the result shares no mutable state with a.
func (a Avatar) Clone() Avatar {
	out := a
	out.Voices = make([]Voice, len(a.Voices))
	for i, v := range a.Voices {
		out.Voices[i] = v.Clone()
	}
	return out
}

// WithVoices returns a copy of a whose voice list is replaced by voices.
func (a Avatar) WithVoices(voices []Voice) Avatar {
	out := a
	out.Voices = slices.Clone(voices)
	return out
}

// VoiceIndex returns the position of the voice with the given id, or -1.
func (a Avatar) VoiceIndex(id string) int {
	return slices.IndexFunc(a.Voices, func(v Voice) bool { return v.ID == id })
}

// BlobRefs returns every blob reference owned by a: the audio of each voice
// followed by the custom image, if any. Empty references are skipped.
func (a Avatar) BlobRefs() []string {
	refs := make([]string, 0, len(a.Voices)+1)
	for _, v := range a.Voices {
		if v.AudioRef != "" {
			refs = append(refs, v.AudioRef)
		}
	}
	if a.ImagePath != "" {
		refs = append(refs, a.ImagePath)
	}
	return refs
}

// Clone returns a deep copy of v.
func (v Voice) Clone() Voice {
	out := v
	if v.LastPlayed != nil {
		t := *v.LastPlayed
		out.LastPlayed = &t
	}
	if v.Color != nil {
		c := *v.Color
		out.Color = &c
	}
	return out
}

// CloneAll deep-copies a collection.
func CloneAll(avatars []Avatar) []Avatar {
	out := make([]Avatar, len(avatars))
	for i, a := range avatars {
		out[i] = a.Clone()
	}
	return out
}

// IndexOf returns the position of the avatar with the given id, or -1.
func IndexOf(avatars []Avatar, id string) int {
	return slices.IndexFunc(avatars, func(a Avatar) bool { return a.ID == id })
}

// ValidName reports whether name is usable as a display name.
func ValidName(name string) bool {
	return strings.TrimSpace(name) != ""
}
