// Package codec converts the avatar collection to and from the JSON document
// kept by the metadata store.
//
// Encoding is strict. Decoding is tolerant: only a document that is not a
// JSON array is rejected outright. Inside the array every record is decoded
// on its own, so one damaged avatar or voice costs that record and nothing
// else, and a bad field falls back to its default.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
)

// UnnamedAvatar replaces a missing or blank avatar name on decode.
const UnnamedAvatar = "Unnamed"

type avatarRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Color     string        `json:"color"`
	Icon      string        `json:"icon"`
	ImagePath string        `json:"imagePath,omitempty"`
	Voices    []voiceRecord `json:"voices"`
}

type voiceRecord struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	AudioURL   string  `json:"audioUrl"`
	Duration   int64   `json:"duration"`
	CreatedAt  string  `json:"createdAt,omitempty"`
	Category   string  `json:"category"`
	PlayCount  int     `json:"playCount"`
	LastPlayed *string `json:"lastPlayed"`
	Color      *string `json:"color,omitempty"`
}

// Encode serialises avatars into the stored document format. Durations are
// written in whole milliseconds and timestamps as RFC 3339 in UTC.
func Encode(avatars []avatar.Avatar) ([]byte, error) {
	records := make([]avatarRecord, len(avatars))
	for i, a := range avatars {
		rec := avatarRecord{
			ID:        a.ID,
			Name:      a.Name,
			Color:     string(a.Color),
			Icon:      string(a.Icon),
			ImagePath: a.ImagePath,
			Voices:    make([]voiceRecord, len(a.Voices)),
		}
		for j, v := range a.Voices {
			rec.Voices[j] = encodeVoice(v)
		}
		records[i] = rec
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

func encodeVoice(v avatar.Voice) voiceRecord {
	rec := voiceRecord{
		ID:        v.ID,
		Name:      v.Name,
		AudioURL:  v.AudioRef,
		Duration:  v.Duration.Milliseconds(),
		Category:  v.Category,
		PlayCount: v.PlayCount,
	}
	if !v.CreatedAt.IsZero() {
		rec.CreatedAt = formatTime(v.CreatedAt)
	}
	if v.LastPlayed != nil {
		s := formatTime(*v.LastPlayed)
		rec.LastPlayed = &s
	}
	if v.Color != nil {
		c := string(*v.Color)
		rec.Color = &c
	}
	return rec
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
