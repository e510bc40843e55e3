// Package query answers read-only questions about an avatar collection:
// text search, usage rankings, aggregate statistics, and fuzzy suggestions.
//
// Every function takes a snapshot slice and never mutates it. A limit <= 0
// means no limit.
package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
)

// VoiceRef is a voice together with the avatar that owns it.
type VoiceRef struct {
	AvatarID   string
	AvatarName string
	Voice      avatar.Voice
}

// SearchResult holds the avatars whose name matched and the voices whose
// name or category matched, both in collection order.
type SearchResult struct {
	Avatars []avatar.Avatar
	Voices  []VoiceRef
}

// Empty reports whether nothing matched.
func (r SearchResult) Empty() bool { return len(r.Avatars) == 0 && len(r.Voices) == 0 }

// Search matches q case-insensitively as a substring. A blank q matches
// nothing.
func Search(avatars []avatar.Avatar, q string) SearchResult {
	var res SearchResult
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return res
	}
	for _, a := range avatars {
		if strings.Contains(strings.ToLower(a.Name), q) {
			res.Avatars = append(res.Avatars, a.Clone())
		}
		for _, v := range a.Voices {
			if strings.Contains(strings.ToLower(v.Name), q) ||
				strings.Contains(strings.ToLower(v.Category), q) {
				res.Voices = append(res.Voices, ref(a, v))
			}
		}
	}
	return res
}

// MostUsed returns voices played at least once, most played first. Ties keep
// collection order.
func MostUsed(avatars []avatar.Avatar, limit int) []VoiceRef {
	out := collect(avatars, func(v avatar.Voice) bool { return v.PlayCount > 0 })
	slices.SortStableFunc(out, func(a, b VoiceRef) int {
		return cmp.Compare(b.Voice.PlayCount, a.Voice.PlayCount)
	})
	return truncate(out, limit)
}

// RecentlyUsed returns voices that have been played, most recent first. Ties
// keep collection order.
func RecentlyUsed(avatars []avatar.Avatar, limit int) []VoiceRef {
	out := collect(avatars, func(v avatar.Voice) bool { return v.LastPlayed != nil })
	slices.SortStableFunc(out, func(a, b VoiceRef) int {
		return b.Voice.LastPlayed.Compare(*a.Voice.LastPlayed)
	})
	return truncate(out, limit)
}

// Summary aggregates a collection.
type Summary struct {
	Avatars       int
	Voices        int
	TotalPlays    int
	TotalDuration time.Duration

	// Categories counts voices per category.
	Categories map[string]int

	// LastPlayed is the most recent play across all voices, or nil.
	LastPlayed *time.Time
}

// Stats summarises avatars.
func Stats(avatars []avatar.Avatar) Summary {
	s := Summary{Avatars: len(avatars), Categories: make(map[string]int)}
	for _, a := range avatars {
		for _, v := range a.Voices {
			s.Voices++
			s.TotalPlays += v.PlayCount
			s.TotalDuration += v.Duration
			s.Categories[v.Category]++
			if v.LastPlayed != nil && (s.LastPlayed == nil || v.LastPlayed.After(*s.LastPlayed)) {
				t := *v.LastPlayed
				s.LastPlayed = &t
			}
		}
	}
	return s
}

// Categories returns the distinct voice categories sorted by name.
func Categories(avatars []avatar.Avatar) []string {
	var out []string
	for _, a := range avatars {
		for _, v := range a.Voices {
			out = append(out, v.Category)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func ref(a avatar.Avatar, v avatar.Voice) VoiceRef {
	return VoiceRef{AvatarID: a.ID, AvatarName: a.Name, Voice: v.Clone()}
}

func collect(avatars []avatar.Avatar, keep func(avatar.Voice) bool) []VoiceRef {
	var out []VoiceRef
	for _, a := range avatars {
		for _, v := range a.Voices {
			if keep(v) {
				out = append(out, ref(a, v))
			}
		}
	}
	return out
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
