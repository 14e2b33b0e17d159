// Package preset provides the prompt-template catalog and the per-user
// sticky preset selector.
package preset

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// DefaultPresetID is preferred by Catalog.Default when present.
const DefaultPresetID = "oracle"

// ErrNotFound is returned for lookups of unknown preset ids.
var ErrNotFound = errors.New("preset not found")

// ErrEmptyCatalog is returned when a draw has nothing to choose from.
var ErrEmptyCatalog = errors.New("no presets available")

// Catalog is a read-only, validated set of presets.
type Catalog struct {
	presets []models.Preset
	byID    map[string]models.Preset
}

// NewCatalog validates the presets and builds the lookup index. Every entry
// must have a non-empty id, name, system prompt and at least one user prompt.
func NewCatalog(presets []models.Preset) (*Catalog, error) {
	byID := make(map[string]models.Preset, len(presets))
	for i, p := range presets {
		if p.ID == "" || p.Name == "" || p.SystemPrompt == "" || len(p.UserPrompts) == 0 {
			return nil, fmt.Errorf("invalid preset at index %d (id %q)", i, p.ID)
		}
		byID[p.ID] = p
	}
	return &Catalog{presets: presets, byID: byID}, nil
}

// LoadCatalog reads and validates a YAML preset catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}

	var presets []models.Preset
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parse presets file %s: %w", path, err)
	}

	c, err := NewCatalog(presets)
	if err != nil {
		return nil, fmt.Errorf("validate presets file %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{"count": len(presets), "path": path}).Info("loaded presets")
	return c, nil
}

// ByID returns the preset with the given id.
func (c *Catalog) ByID(id string) (models.Preset, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All returns every preset in catalog order.
func (c *Catalog) All() []models.Preset {
	out := make([]models.Preset, len(c.presets))
	copy(out, c.presets)
	return out
}

// Len returns the number of presets.
func (c *Catalog) Len() int {
	return len(c.presets)
}

// Default returns the preset with id "oracle" if present, otherwise the
// first catalog entry. It fails on an empty catalog.
func (c *Catalog) Default() (models.Preset, error) {
	if p, ok := c.byID[DefaultPresetID]; ok {
		return p, nil
	}
	if len(c.presets) == 0 {
		return models.Preset{}, ErrEmptyCatalog
	}
	return c.presets[0], nil
}
