package query

import (
	"testing"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func fixture() []avatar.Avatar {
	return []avatar.Avatar{
		{
			ID: "a1", Name: "Bard",
			Voices: []avatar.Voice{
				{ID: "v1", Name: "Laugh", Category: "sfx", PlayCount: 5, LastPlayed: at(time.Minute), Duration: time.Second},
				{ID: "v2", Name: "Song", Category: "music", PlayCount: 0, Duration: 3 * time.Second},
			},
		},
		{
			ID: "a2", Name: "Narrator",
			Voices: []avatar.Voice{
				{ID: "v3", Name: "Intro", Category: "music", PlayCount: 3, LastPlayed: at(time.Hour), Duration: 2 * time.Second},
			},
		},
		{ID: "a3", Name: "Empty", Voices: []avatar.Voice{}},
	}
}

func ids(refs []VoiceRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Voice.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		q           string
		wantAvatars []string
		wantVoices  []string
	}{
		{q: "lau", wantVoices: []string{"v1"}},
		{q: "SFX", wantVoices: []string{"v1"}},
		{q: "music", wantVoices: []string{"v2", "v3"}},
		{q: "ar", wantAvatars: []string{"a1", "a2"}},
		{q: "zzz"},
		{q: "   "},
		{q: ""},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			t.Parallel()
			res := Search(fixture(), tt.q)

			var gotAvatars []string
			for _, a := range res.Avatars {
				gotAvatars = append(gotAvatars, a.ID)
			}
			if !equal(gotAvatars, tt.wantAvatars) {
				t.Errorf("avatars = %v, want %v", gotAvatars, tt.wantAvatars)
			}
			if got := ids(res.Voices); !equal(got, tt.wantVoices) {
				t.Errorf("voices = %v, want %v", got, tt.wantVoices)
			}
			if res.Empty() != (len(tt.wantAvatars) == 0 && len(tt.wantVoices) == 0) {
				t.Errorf("Empty() = %v", res.Empty())
			}
		})
	}
}

func TestSearch_CarriesOwner(t *testing.T) {
	t.Parallel()

	res := Search(fixture(), "intro")
	if len(res.Voices) != 1 || res.Voices[0].AvatarID != "a2" || res.Voices[0].AvatarName != "Narrator" {
		t.Errorf("voices = %+v", res.Voices)
	}
}

func TestMostUsed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"unlimited", 0, []string{"v1", "v3"}},
		{"negative is unlimited", -1, []string{"v1", "v3"}},
		{"limit 1", 1, []string{"v1"}},
		{"limit larger than result", 10, []string{"v1", "v3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ids(MostUsed(fixture(), tt.limit)); !equal(got, tt.want) {
				t.Errorf("MostUsed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMostUsed_StableOnTies(t *testing.T) {
	t.Parallel()

	avatars := []avatar.Avatar{{ID: "a", Voices: []avatar.Voice{
		{ID: "x", PlayCount: 2}, {ID: "y", PlayCount: 7}, {ID: "z", PlayCount: 2},
	}}}
	if got := ids(MostUsed(avatars, 0)); !equal(got, []string{"y", "x", "z"}) {
		t.Errorf("MostUsed = %v", got)
	}
}

func TestRecentlyUsed(t *testing.T) {
	t.Parallel()

	if got := ids(RecentlyUsed(fixture(), 0)); !equal(got, []string{"v3", "v1"}) {
		t.Errorf("RecentlyUsed = %v", got)
	}
	if got := ids(RecentlyUsed(fixture(), 1)); !equal(got, []string{"v3"}) {
		t.Errorf("RecentlyUsed(1) = %v", got)
	}
	if got := RecentlyUsed(nil, 5); len(got) != 0 {
		t.Errorf("RecentlyUsed(nil) = %v", got)
	}
}

func TestResultsAreCopies(t *testing.T) {
	t.Parallel()

	avatars := fixture()
	got := RecentlyUsed(avatars, 1)
	*got[0].Voice.LastPlayed = time.Time{}
	if avatars[1].Voices[0].LastPlayed.IsZero() {
		t.Error("mutating a result changed the collection")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := Stats(fixture())
	if s.Avatars != 3 || s.Voices != 3 || s.TotalPlays != 8 {
		t.Errorf("counts = %+v", s)
	}
	if s.TotalDuration != 6*time.Second {
		t.Errorf("TotalDuration = %v", s.TotalDuration)
	}
	if s.Categories["music"] != 2 || s.Categories["sfx"] != 1 {
		t.Errorf("Categories = %v", s.Categories)
	}
	if s.LastPlayed == nil || !s.LastPlayed.Equal(t0.Add(time.Hour)) {
		t.Errorf("LastPlayed = %v", s.LastPlayed)
	}

	empty := Stats(nil)
	if empty.Voices != 0 || empty.LastPlayed != nil || empty.Categories == nil {
		t.Errorf("Stats(nil) = %+v", empty)
	}
}

func TestCategories(t *testing.T) {
	t.Parallel()

	if got := Categories(fixture()); !equal(got, []string{"music", "sfx"}) {
		t.Errorf("Categories = %v", got)
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	got := Suggest(fixture(), "lagh", 3)
	if len(got) == 0 || got[0].Text != "Laugh" {
		t.Fatalf("Suggest(lagh) = %+v, want Laugh first", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("suggestions not sorted: %+v", got)
		}
	}

	if got := Suggest(fixture(), "narator", 0); len(got) == 0 || got[0].Text != "Narrator" {
		t.Errorf("Suggest(narator) = %+v", got)
	}
	if got := Suggest(fixture(), "qqqqqq", 0); len(got) != 0 {
		t.Errorf("Suggest(qqqqqq) = %+v, want none", got)
	}
	if got := Suggest(fixture(), " ", 0); got != nil {
		t.Errorf("Suggest(blank) = %+v", got)
	}
}
