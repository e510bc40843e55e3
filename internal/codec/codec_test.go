package codec

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
)

func sampleCollection() []avatar.Avatar {
	created := time.Date(2026, 1, 2, 3, 4, 5, 600_000_000, time.UTC)
	played := created.Add(time.Hour)
	teal := avatar.ColorTeal
	return []avatar.Avatar{
		{
			ID:        "a1",
			Name:      "Bard",
			Color:     avatar.ColorRed,
			Icon:      avatar.IconMusic,
			ImagePath: "/data/images/image_1.png",
			Voices: []avatar.Voice{
				{
					ID:         "v1",
					Name:       "Laugh",
					AudioRef:   "/data/audio/audio_1.m4a",
					Duration:   1500 * time.Millisecond,
					CreatedAt:  created,
					Category:   "sfx",
					PlayCount:  3,
					LastPlayed: &played,
					Color:      &teal,
				},
				{
					ID:        "v2",
					Name:      "Sigh",
					AudioRef:  "bolt://audio_2",
					CreatedAt: created,
					Category:  avatar.DefaultCategory,
				},
			},
		},
		{
			ID:     "a2",
			Name:   "Narrator",
			Color:  avatar.ColorBlueGrey,
			Icon:   avatar.IconPerson,
			Voices: []avatar.Voice{},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	in := sampleCollection()
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, rep, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !rep.Clean() {
		t.Errorf("round trip needed repairs: %+v", rep)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", out, in)
	}
}

func TestEncode_WireFormat(t *testing.T) {
	t.Parallel()

	data, err := Encode(sampleCollection())
	if err != nil {
		t.Fatal(err)
	}
	var doc []map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	voice := doc[0]["voices"].([]any)[0].(map[string]any)

	if got := voice["audioUrl"]; got != "/data/audio/audio_1.m4a" {
		t.Errorf("audioUrl = %v", got)
	}
	if got := voice["duration"]; got != float64(1500) {
		t.Errorf("duration = %v, want milliseconds", got)
	}
	if got := voice["createdAt"]; got != "2026-01-02T03:04:05.6Z" {
		t.Errorf("createdAt = %v", got)
	}
	if got := doc[0]["icon"]; got != "music" {
		t.Errorf("icon = %v, want symbolic name", got)
	}
	if got := doc[0]["color"]; got != "red" {
		t.Errorf("color = %v", got)
	}
}

func TestEncode_EmptyCollection(t *testing.T) {
	t.Parallel()

	data, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("Encode(nil) = %s, want []", data)
	}
	out, _, err := Decode(data)
	if err != nil || len(out) != 0 {
		t.Errorf("Decode([]) = %v, %v", out, err)
	}
}

func TestDecode_RejectsNonArray(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{``, `{}`, `null`, `"x"`, `[{"id":"a"`} {
		_, _, err := Decode([]byte(doc))
		if !errors.Is(err, avatar.ErrDecode) {
			t.Errorf("Decode(%q) error = %v, want ErrDecode", doc, err)
		}
	}
}

func TestDecode_Tolerant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		doc       string
		check     func(t *testing.T, got []avatar.Avatar)
		skipped   int
		defaulted int
	}{
		{
			name:    "non-object records are skipped",
			doc:     `[1, "x", null, {"id":"a","name":"A","color":"red"}]`,
			skipped: 3,
			check: func(t *testing.T, got []avatar.Avatar) {
				if len(got) != 1 || got[0].ID != "a" {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name:    "record without id is skipped",
			doc:     `[{"name":"A"},{"id":"","name":"B"},{"id":7}]`,
			skipped: 3,
			check: func(t *testing.T, got []avatar.Avatar) {
				if len(got) != 0 {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name:      "bad fields fall back to defaults",
			doc:       `[{"id":"a","name":"  ","color":"chartreuse","icon":"nope"}]`,
			defaulted: 3,
			check: func(t *testing.T, got []avatar.Avatar) {
				a := got[0]
				if a.Name != UnnamedAvatar {
					t.Errorf("Name = %q", a.Name)
				}
				if !a.Color.IsValid() {
					t.Errorf("Color = %q not in palette", a.Color)
				}
				if a.Icon != avatar.DefaultIcon {
					t.Errorf("Icon = %q", a.Icon)
				}
				if a.Voices == nil {
					t.Error("Voices is nil, want empty")
				}
			},
		},
		{
			name: "legacy icon code is translated",
			doc:  `[{"id":"a","name":"A","color":"red","icon":"57410:MaterialIcons"}]`,
			check: func(t *testing.T, got []avatar.Avatar) {
				if want, _ := avatar.ParseIcon("57410:MaterialIcons"); got[0].Icon != want {
					t.Errorf("Icon = %q, want %q", got[0].Icon, want)
				}
			},
		},
		{
			name: "duplicate ids keep the first",
			doc: `[{"id":"a","name":"First","color":"red"},
			       {"id":"a","name":"Second","color":"red"}]`,
			skipped: 1,
			check: func(t *testing.T, got []avatar.Avatar) {
				if len(got) != 1 || got[0].Name != "First" {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name: "damaged voices cost only themselves",
			doc: `[{"id":"a","name":"A","color":"red","voices":[
				{"id":"v1","name":"ok","audioUrl":"mem://1"},
				{"id":"v2","name":"no audio"},
				"garbage",
				{"id":"v1","name":"dup","audioUrl":"mem://2"},
				{"id":"v3","name":"bad","audioUrl":"mem://3","duration":-5,"playCount":"many",
				 "createdAt":"yesterday","lastPlayed":"later","color":"plaid","category":""}
			]}]`,
			skipped:   3,
			defaulted: 6,
			check: func(t *testing.T, got []avatar.Avatar) {
				vs := got[0].Voices
				if len(vs) != 2 || vs[0].ID != "v1" || vs[1].ID != "v3" {
					t.Fatalf("voices = %+v", vs)
				}
				v := vs[1]
				if v.Duration != 0 || v.PlayCount != 0 || !v.CreatedAt.IsZero() ||
					v.LastPlayed != nil || v.Color != nil {
					t.Errorf("defaults not applied: %+v", v)
				}
				if v.Category != avatar.DefaultCategory {
					t.Errorf("Category = %q", v.Category)
				}
			},
		},
		{
			name: "durations beyond time.Duration are defaulted",
			doc: `[{"id":"a","name":"A","color":"red","voices":[
				{"id":"v","name":"long","audioUrl":"mem://1","duration":9000000000000000}
			]}]`,
			defaulted: 1,
			check: func(t *testing.T, got []avatar.Avatar) {
				if d := got[0].Voices[0].Duration; d != 0 {
					t.Errorf("Duration = %v, want 0", d)
				}
			},
		},
		{
			name:      "voices of the wrong type become empty",
			doc:       `[{"id":"a","name":"A","color":"red","voices":{}}]`,
			defaulted: 1,
			check: func(t *testing.T, got []avatar.Avatar) {
				if len(got[0].Voices) != 0 {
					t.Errorf("voices = %+v", got[0].Voices)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, rep, err := Decode([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if rep.Skipped != tt.skipped || rep.Defaulted != tt.defaulted {
				t.Errorf("report = %+v, want skipped=%d defaulted=%d", rep, tt.skipped, tt.defaulted)
			}
			tt.check(t, got)
		})
	}
}

func TestDecode_MissingOptionalFieldsAreNotRepairs(t *testing.T) {
	t.Parallel()

	doc := `[{"id":"a","name":"A","color":"red","voices":[{"id":"v","name":"n","audioUrl":"mem://x"}]}]`
	got, rep, err := Decode([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Clean() {
		t.Errorf("report = %+v, want clean", rep)
	}
	if got[0].Voices[0].Category != avatar.DefaultCategory {
		t.Errorf("Category = %q", got[0].Voices[0].Category)
	}
	if !strings.HasPrefix(got[0].Voices[0].AudioRef, "mem://") {
		t.Errorf("AudioRef = %q", got[0].Voices[0].AudioRef)
	}
}
