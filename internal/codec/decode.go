package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
)

// Report summarises what a tolerant decode had to repair.
type Report struct {
	// Skipped counts records dropped entirely: non-objects, missing ids,
	// voices without audio, and duplicate ids.
	Skipped int

	// Defaulted counts individual fields replaced by their default.
	Defaulted int
}

// Clean reports whether the document decoded without any repair.
func (r Report) Clean() bool { return r.Skipped == 0 && r.Defaulted == 0 }

// Decode parses a stored document. It fails with [avatar.ErrDecode] only
// when data is not a JSON array; every other problem is repaired and
// counted in the returned [Report]. Duplicate avatar ids, and duplicate
// voice ids within one avatar, keep the first occurrence.
func Decode(data []byte) ([]avatar.Avatar, Report, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Report{}, fmt.Errorf("codec: decode: %w: %w", avatar.ErrDecode, err)
	}
	if raw == nil {
		// "null" is valid JSON but not a collection.
		return nil, Report{}, fmt.Errorf("codec: decode: %w: document is not an array", avatar.ErrDecode)
	}

	var rep Report
	out := make([]avatar.Avatar, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, msg := range raw {
		a, ok := decodeAvatar(msg, &rep)
		if !ok {
			rep.Skipped++
			continue
		}
		if seen[a.ID] {
			rep.Skipped++
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, rep, nil
}

type fields map[string]json.RawMessage

func decodeAvatar(msg json.RawMessage, rep *Report) (avatar.Avatar, bool) {
	var f fields
	if err := json.Unmarshal(msg, &f); err != nil || f == nil {
		return avatar.Avatar{}, false
	}
	id, ok := f.str("id")
	if !ok || id == "" {
		return avatar.Avatar{}, false
	}

	a := avatar.Avatar{ID: id}

	a.Name, ok = f.str("name")
	if !ok || !avatar.ValidName(a.Name) {
		a.Name = UnnamedAvatar
		rep.Defaulted++
	}

	c, ok := f.str("color")
	a.Color = avatar.Color(c)
	if !ok || !a.Color.IsValid() {
		a.Color = avatar.RandomColor()
		rep.Defaulted++
	}

	a.Icon = avatar.DefaultIcon
	if f.has("icon") {
		s, ok := f.str("icon")
		icon, known := avatar.ParseIcon(s)
		a.Icon = icon
		if !ok || !known {
			rep.Defaulted++
		}
	}

	if f.has("imagePath") {
		path, ok := f.str("imagePath")
		if !ok {
			rep.Defaulted++
		}
		a.ImagePath = path
	}

	a.Voices = decodeVoices(f, rep)
	return a, true
}

func decodeVoices(f fields, rep *Report) []avatar.Voice {
	voices := []avatar.Voice{}
	if !f.has("voices") {
		return voices
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(f["voices"], &raw); err != nil {
		rep.Defaulted++
		return voices
	}
	seen := make(map[string]bool, len(raw))
	for _, msg := range raw {
		v, ok := decodeVoice(msg, rep)
		if !ok || seen[v.ID] {
			rep.Skipped++
			continue
		}
		seen[v.ID] = true
		voices = append(voices, v)
	}
	return voices
}

func decodeVoice(msg json.RawMessage, rep *Report) (avatar.Voice, bool) {
	var f fields
	if err := json.Unmarshal(msg, &f); err != nil || f == nil {
		return avatar.Voice{}, false
	}
	id, ok := f.str("id")
	if !ok || id == "" {
		return avatar.Voice{}, false
	}
	// A voice without audio cannot be played or cleaned up.
	ref, ok := f.str("audioUrl")
	if !ok || ref == "" {
		return avatar.Voice{}, false
	}

	v := avatar.Voice{ID: id, AudioRef: ref}

	v.Name, ok = f.str("name")
	if !ok || !avatar.ValidName(v.Name) {
		v.Name = "Voice " + shortID(id)
		rep.Defaulted++
	}

	if f.has("duration") {
		ms, ok := f.nonNegInt("duration", maxDurationMillis)
		if !ok {
			rep.Defaulted++
		}
		v.Duration = time.Duration(ms) * time.Millisecond
	}

	if f.has("createdAt") {
		t, ok := f.time("createdAt")
		if !ok {
			rep.Defaulted++
		}
		v.CreatedAt = t
	}

	v.Category, ok = f.str("category")
	if !ok || strings.TrimSpace(v.Category) == "" {
		if f.has("category") {
			rep.Defaulted++
		}
		v.Category = avatar.DefaultCategory
	}

	if f.has("playCount") {
		n, ok := f.nonNegInt("playCount", maxSafeInt)
		if !ok {
			rep.Defaulted++
		}
		v.PlayCount = int(n)
	}

	if f.has("lastPlayed") && !f.null("lastPlayed") {
		t, ok := f.time("lastPlayed")
		if ok {
			v.LastPlayed = &t
		} else {
			rep.Defaulted++
		}
	}

	if f.has("color") && !f.null("color") {
		s, ok := f.str("color")
		c := avatar.Color(s)
		if ok && c.IsValid() {
			v.Color = &c
		} else {
			rep.Defaulted++
		}
	}

	return v, true
}

func (f fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f fields) null(key string) bool {
	return string(f[key]) == "null"
}

func (f fields) str(key string) (string, bool) {
	raw, ok := f[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

const (
	// maxSafeInt is the largest integer a JSON number holds exactly.
	maxSafeInt = 1 << 53

	// maxDurationMillis is the longest duration in milliseconds that fits
	// a time.Duration.
	maxDurationMillis = math.MaxInt64 / int64(time.Millisecond)
)

// nonNegInt accepts any JSON number, truncating fractions. Negative,
// non-numeric, or values above limit yield 0 and false.
func (f fields) nonNegInt(key string, limit int64) (int64, bool) {
	var n float64
	if err := json.Unmarshal(f[key], &n); err != nil {
		return 0, false
	}
	if n < 0 || math.IsNaN(n) || n > float64(limit) {
		return 0, false
	}
	return int64(n), true
}

func (f fields) time(key string) (time.Time, bool) {
	s, ok := f.str(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
