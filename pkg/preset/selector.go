package preset

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// Picker supplies random indices. The default implementation draws from
// math/rand/v2; tests inject deterministic sequences.
type Picker interface {
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
}

type stdPicker struct{}

func (stdPicker) IntN(n int) int { return rand.IntN(n) }

// StdPicker returns the default random source.
func StdPicker() Picker { return stdPicker{} }

// Selector assigns each user a random preset and keeps it pinned until the
// user's rate window resets, so one persona stays consistent across all
// requests inside a window. Pins live only in process memory.
type Selector struct {
	catalog *Catalog
	picker  Picker

	mu   sync.Mutex
	pins map[string]models.PresetPin
}

// NewSelector creates a Selector over the catalog. A nil picker selects the
// default random source.
func NewSelector(catalog *Catalog, picker Picker) *Selector {
	if picker == nil {
		picker = stdPicker{}
	}
	return &Selector{
		catalog: catalog,
		picker:  picker,
		pins:    make(map[string]models.PresetPin),
	}
}

// SelectOrReuse returns the user's pinned preset if the pin has not expired,
// otherwise draws a new random preset and pins it until windowResetAt.
func (s *Selector) SelectOrReuse(userID string, windowResetAt time.Time) (models.Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pin, ok := s.pins[userID]; ok && pin.ExpiresAt.After(time.Now().UTC()) {
		return pin.Preset, nil
	}

	p, err := s.randomPreset()
	if err != nil {
		return models.Preset{}, err
	}

	s.pins[userID] = models.PresetPin{
		Preset:     p,
		SelectedAt: time.Now().UTC(),
		ExpiresAt:  windowResetAt,
	}
	return p, nil
}

// RandomPreset draws a preset uniformly at random from the catalog.
func (s *Selector) RandomPreset() (models.Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randomPreset()
}

func (s *Selector) randomPreset() (models.Preset, error) {
	if s.catalog.Len() == 0 {
		return models.Preset{}, ErrEmptyCatalog
	}
	return s.catalog.presets[s.picker.IntN(s.catalog.Len())], nil
}

// RandomPrompt draws one of the preset's user prompts uniformly at random.
func (s *Selector) RandomPrompt(presetID string) (string, error) {
	p, ok := s.catalog.ByID(presetID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, presetID)
	}
	if len(p.UserPrompts) == 0 {
		return "", fmt.Errorf("%w: preset %s has no user prompts", ErrEmptyCatalog, presetID)
	}
	return p.UserPrompts[s.picker.IntN(len(p.UserPrompts))], nil
}

// Pin returns the user's current pin, expired or not.
func (s *Selector) Pin(userID string) (models.PresetPin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[userID]
	return pin, ok
}
