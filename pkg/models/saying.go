package models

import "time"

// Source records where a saying came from.
type Source string

const (
	// SourceGenerated marks a saying freshly produced by the upstream model.
	SourceGenerated Source = "llm"
	// SourceCached marks a saying served from the cache tier.
	SourceCached Source = "cache"
	// SourceStored marks a saying loaded from durable storage.
	SourceStored Source = "database"
)

// Saying is one produced or cached answer.
type Saying struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	Source    Source    `json:"source"`
	// PresetID references the preset that produced the saying.
	// Empty for free-form prompts.
	PresetID string `json:"preset_id,omitempty"`
}

// CacheKey identifies cache-equivalent sayings: same preset identity and
// exact prompt text, no normalization. Comparable, so it works as a map key.
type CacheKey struct {
	PresetID string `json:"preset_id"`
	Prompt   string `json:"prompt"`
}

// Key returns the saying's global cache key.
func (s Saying) Key() CacheKey {
	return CacheKey{PresetID: s.PresetID, Prompt: s.Prompt}
}
