package avatar

import (
	"errors"
	"fmt"
)

// Validate checks an [Avatar] and its voices against the model invariants.
//
// Rules:
//   - ID and Name must be non-empty.
//   - Color must be in the palette; Icon must be recognised.
//   - Voice ids must be unique within the avatar.
//   - Every voice needs an id, a name, and an audio reference; Duration and
//     PlayCount must not be negative; a voice colour must be in the palette.
//
// Every violation wraps [ErrInvalidArgument].
func Validate(a Avatar) error {
	var errs []error

	if a.ID == "" {
		errs = append(errs, fmt.Errorf("%w: id must not be empty", ErrInvalidArgument))
	}
	if !ValidName(a.Name) {
		errs = append(errs, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument))
	}
	if !a.Color.IsValid() {
		errs = append(errs, fmt.Errorf("%w: color %q is not in the palette", ErrInvalidArgument, a.Color))
	}
	if !a.Icon.IsValid() {
		errs = append(errs, fmt.Errorf("%w: icon %q is not recognised", ErrInvalidArgument, a.Icon))
	}

	seen := make(map[string]int, len(a.Voices))
	for i, v := range a.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.ID == "" {
			errs = append(errs, fmt.Errorf("%w: %s.id must not be empty", ErrInvalidArgument, prefix))
		} else if prev, dup := seen[v.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %s.id %q duplicates voices[%d]", ErrInvalidArgument, prefix, v.ID, prev))
		} else {
			seen[v.ID] = i
		}
		if !ValidName(v.Name) {
			errs = append(errs, fmt.Errorf("%w: %s.name must not be empty", ErrInvalidArgument, prefix))
		}
		if v.AudioRef == "" {
			errs = append(errs, fmt.Errorf("%w: %s.audio_ref must not be empty", ErrInvalidArgument, prefix))
		}
		if v.Duration < 0 {
			errs = append(errs, fmt.Errorf("%w: %s.duration must not be negative", ErrInvalidArgument, prefix))
		}
		if v.PlayCount < 0 {
			errs = append(errs, fmt.Errorf("%w: %s.play_count must not be negative", ErrInvalidArgument, prefix))
		}
		if v.Color != nil && !v.Color.IsValid() {
			errs = append(errs, fmt.Errorf("%w: %s.color %q is not in the palette", ErrInvalidArgument, prefix, *v.Color))
		}
	}

	return errors.Join(errs...)
}
