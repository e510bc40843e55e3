package repository

import (
	"github.com/MrWong99/soundboard/internal/query"
)

// Search matches q against avatar names and voice names and categories.
func (r *Repository) Search(q string) query.SearchResult {
	return query.Search(r.snapshot(), q)
}

// MostUsed returns up to limit played voices, most played first.
func (r *Repository) MostUsed(limit int) []query.VoiceRef {
	return query.MostUsed(r.snapshot(), limit)
}

// RecentlyUsed returns up to limit played voices, most recent first.
func (r *Repository) RecentlyUsed(limit int) []query.VoiceRef {
	return query.RecentlyUsed(r.snapshot(), limit)
}

// Stats summarises the collection.
func (r *Repository) Stats() query.Summary {
	return query.Stats(r.snapshot())
}

// Categories lists the distinct voice categories.
func (r *Repository) Categories() []string {
	return query.Categories(r.snapshot())
}

// Suggest returns names close to q, for use when Search finds nothing.
func (r *Repository) Suggest(q string, limit int) []query.Suggestion {
	return query.Suggest(r.snapshot(), q, limit)
}
