package preset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// seqPicker returns a fixed sequence of indices, then repeats the last one.
type seqPicker struct {
	seq []int
	i   int
}

func (p *seqPicker) IntN(n int) int {
	v := p.seq[p.i]
	if p.i < len(p.seq)-1 {
		p.i++
	}
	return v % n
}

func testPresets() []models.Preset {
	return []models.Preset{
		{
			ID:           "oracle",
			Name:         "Oracle",
			SystemPrompt: "You are a wise oracle.",
			UserPrompts:  []string{"Share a prophecy.", "What do the stars say?"},
		},
		{
			ID:           "poet",
			Name:         "Poet",
			SystemPrompt: "You are a melancholy poet.",
			UserPrompts:  []string{"Write a short verse."},
		},
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(testPresets())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewCatalogRejectsInvalidPreset(t *testing.T) {
	cases := []struct {
		name   string
		preset models.Preset
	}{
		{"missing id", models.Preset{Name: "x", SystemPrompt: "s", UserPrompts: []string{"p"}}},
		{"missing name", models.Preset{ID: "x", SystemPrompt: "s", UserPrompts: []string{"p"}}},
		{"missing system prompt", models.Preset{ID: "x", Name: "x", UserPrompts: []string{"p"}}},
		{"no user prompts", models.Preset{ID: "x", Name: "x", SystemPrompt: "s"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCatalog([]models.Preset{tc.preset}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	data := `
- id: oracle
  name: Oracle
  system_prompt: You are a wise oracle.
  user_prompts:
    - Share a prophecy.
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
	if _, ok := c.ByID("oracle"); !ok {
		t.Error("expected oracle preset")
	}
}

func TestDefaultPrefersOracle(t *testing.T) {
	c := newTestCatalog(t)
	p, err := c.Default()
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "oracle" {
		t.Errorf("default = %q, want oracle", p.ID)
	}

	noOracle, err := NewCatalog(testPresets()[1:])
	if err != nil {
		t.Fatal(err)
	}
	p, err = noOracle.Default()
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "poet" {
		t.Errorf("default without oracle = %q, want poet", p.ID)
	}

	empty, err := NewCatalog(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := empty.Default(); !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("default on empty catalog = %v, want ErrEmptyCatalog", err)
	}
}

func TestSelectOrReuseSticksWithinWindow(t *testing.T) {
	c := newTestCatalog(t)
	s := NewSelector(c, &seqPicker{seq: []int{0, 1, 1}})

	resetAt := time.Now().UTC().Add(time.Hour)

	first, err := s.SelectOrReuse("alice", resetAt)
	if err != nil {
		t.Fatal(err)
	}

	// Later draws would pick a different preset, but the pin must win.
	for i := 0; i < 3; i++ {
		again, err := s.SelectOrReuse("alice", resetAt)
		if err != nil {
			t.Fatal(err)
		}
		if again.ID != first.ID {
			t.Fatalf("pinned preset changed: %q -> %q", first.ID, again.ID)
		}
	}
}

func TestSelectOrReuseReplacesExpiredPin(t *testing.T) {
	c := newTestCatalog(t)
	s := NewSelector(c, nil)

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := s.SelectOrReuse("bob", expired); err != nil {
		t.Fatal(err)
	}
	pin1, ok := s.Pin("bob")
	if !ok {
		t.Fatal("expected a pin")
	}

	time.Sleep(2 * time.Millisecond)

	if _, err := s.SelectOrReuse("bob", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	pin2, _ := s.Pin("bob")
	if !pin2.SelectedAt.After(pin1.SelectedAt) {
		t.Error("expired pin should be replaced by a fresh draw")
	}
}

func TestRandomPromptErrors(t *testing.T) {
	c := newTestCatalog(t)
	s := NewSelector(c, nil)

	if _, err := s.RandomPrompt("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown preset error = %v, want ErrNotFound", err)
	}

	if _, err := s.RandomPrompt("oracle"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRandomPresetEmptyCatalog(t *testing.T) {
	empty, err := NewCatalog(nil)
	if err != nil {
		t.Fatal(err)
	}
	s := NewSelector(empty, nil)
	if _, err := s.RandomPreset(); !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("error = %v, want ErrEmptyCatalog", err)
	}
}
