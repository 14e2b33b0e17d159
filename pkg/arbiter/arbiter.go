// Package arbiter decides, per request, whether to serve a saying from
// cache, serve a stand-in during cooldown, or invoke the upstream generator,
// and writes the outcome back into the store.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sibyl-ai/sibyl/pkg/generate"
	"github.com/sibyl-ai/sibyl/pkg/langs"
	"github.com/sibyl-ai/sibyl/pkg/models"
	"github.com/sibyl-ai/sibyl/pkg/preset"
	"github.com/sibyl-ai/sibyl/pkg/ratelimit"
)

var (
	// ErrRateLimited means the quota is exhausted and no fallback saying
	// was available.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrBadRequest covers unknown preset ids and empty catalogs.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound covers lookups with nothing to return.
	ErrNotFound = errors.New("not found")
	// ErrUpstream wraps generator failures; the upstream message passes
	// through unchanged.
	ErrUpstream = errors.New("upstream error")
)

// genericSystemPrompt is used for free-form prompts with no preset.
const genericSystemPrompt = "You are a helpful assistant."

const (
	// fallbackSample is how many sayings to pull when serving a cooldown
	// stand-in.
	fallbackSample = 5
	// reusePercent is the chance of reusing a cache hit instead of calling
	// the generator. Generating 70% of the time keeps results fresh; the
	// split is a cost tradeoff, not a correctness rule.
	reusePercent = 30
)

// Store is the slice of the saying store the arbiter needs.
type Store interface {
	Record(ctx context.Context, userID string, s models.Saying) (models.Saying, error)
	LastSaying(ctx context.Context, userID string) (models.Saying, bool, error)
	Sayings(ctx context.Context, userID string, limit int) ([]models.Saying, error)
	FindCached(ctx context.Context, prompt, presetID string) (models.Saying, bool, error)
	AnyCached(ctx context.Context, limit int) ([]models.Saying, error)
}

// Request is one admission request.
type Request struct {
	UserID string
	// Prompt is an explicit free-form prompt. Takes precedence over PresetID.
	Prompt string
	// PresetID picks an explicit preset to draw a prompt from.
	PresetID string
	// LanguageID selects the output language; empty means the default.
	LanguageID string
}

// Status reports a user's quota and selection state.
type Status struct {
	UserID         string         `json:"user_id"`
	CanQuery       bool           `json:"can_query"`
	Remaining      uint32         `json:"remaining_requests"`
	ResetAt        *time.Time     `json:"reset_at,omitempty"`
	LastSaying     *models.Saying `json:"last_saying,omitempty"`
	SelectedPreset *models.Preset `json:"selected_preset,omitempty"`
}

// Arbiter coordinates the rate limiter, the preset selector, the store and
// the generator.
type Arbiter struct {
	limiter  *ratelimit.Limiter
	selector *preset.Selector
	catalog  *preset.Catalog
	store    Store
	gen      generate.Generator
	picker   preset.Picker
}

// New wires an Arbiter. A nil picker selects the default random source.
func New(limiter *ratelimit.Limiter, selector *preset.Selector, catalog *preset.Catalog, store Store, gen generate.Generator, picker preset.Picker) *Arbiter {
	if picker == nil {
		picker = preset.StdPicker()
	}
	return &Arbiter{
		limiter:  limiter,
		selector: selector,
		catalog:  catalog,
		store:    store,
		gen:      gen,
		picker:   picker,
	}
}

// Admit runs the decision flow for one request and returns the saying to
// serve. isNew reports whether the saying was freshly generated.
func (a *Arbiter) Admit(ctx context.Context, req Request) (models.Saying, bool, error) {
	log := logrus.WithField("user_id", req.UserID)

	// Cooldown: quota already exhausted. Serve something from the cache
	// tier if we can; the stand-in is re-tagged as cache-sourced and is not
	// written back.
	if info, ok := a.limiter.Info(req.UserID); ok && info.Remaining == 0 {
		if saying, ok := a.cooldownFallback(ctx, req.UserID); ok {
			log.Info("serving cached saying during cooldown")
			return saying, false, nil
		}
		log.Warn("rate limit exceeded and no cached saying available")
		return models.Saying{}, false, fmt.Errorf("%w: no cached saying available", ErrRateLimited)
	}

	systemPrompt, userPrompt, presetID, err := a.resolvePrompts(req)
	if err != nil {
		return models.Saying{}, false, err
	}

	if req.LanguageID != "" && req.LanguageID != langs.DefaultID {
		if directive := langs.TranslationDirective(req.LanguageID); directive != "" {
			systemPrompt = systemPrompt + "\n\n" + directive
		}
	}

	// Late-breaking exhaustion: a concurrent request may have taken the
	// last unit since the cooldown check above.
	if !a.limiter.Check(req.UserID) {
		return models.Saying{}, false, fmt.Errorf("%w: quota exhausted", ErrRateLimited)
	}

	saying, isNew, err := a.resolveSaying(ctx, systemPrompt, userPrompt, presetID)
	if err != nil {
		return models.Saying{}, false, err
	}

	if _, err := a.store.Record(ctx, req.UserID, saying); err != nil {
		// Losing a cache write is not fatal to the request.
		log.WithError(err).Error("failed to record saying")
	}

	return saying, isNew, nil
}

// cooldownFallback picks a stand-in saying for a user in cooldown: their own
// last saying if any, otherwise a random pick from the cache tier. Storage
// errors count as "nothing found".
func (a *Arbiter) cooldownFallback(ctx context.Context, userID string) (models.Saying, bool) {
	log := logrus.WithField("user_id", userID)

	saying, ok, err := a.store.LastSaying(ctx, userID)
	if err != nil {
		log.WithError(err).Error("failed to read last saying during cooldown")
		ok = false
	}

	if !ok {
		sample, err := a.store.AnyCached(ctx, fallbackSample)
		if err != nil {
			log.WithError(err).Error("failed to sample cached sayings during cooldown")
		}
		if len(sample) == 0 {
			return models.Saying{}, false
		}
		saying = sample[a.picker.IntN(len(sample))]
	}

	saying.Source = models.SourceCached
	return saying, true
}

// resolvePrompts turns the request into an effective
// (system prompt, user prompt, preset id) triple.
func (a *Arbiter) resolvePrompts(req Request) (string, string, string, error) {
	switch {
	case req.Prompt != "":
		return genericSystemPrompt, req.Prompt, "", nil

	case req.PresetID != "":
		p, ok := a.catalog.ByID(req.PresetID)
		if !ok {
			return "", "", "", fmt.Errorf("%w: preset not found: %s", ErrBadRequest, req.PresetID)
		}
		prompt, err := a.selector.RandomPrompt(p.ID)
		if err != nil {
			return "", "", "", fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return p.SystemPrompt, prompt, p.ID, nil

	default:
		// Pin a preset to the user's current window, creating the window
		// first on a user's very first request.
		info, ok := a.limiter.Info(req.UserID)
		if !ok {
			a.limiter.Reset(req.UserID)
			info, _ = a.limiter.Info(req.UserID)
		}
		p, err := a.selector.SelectOrReuse(req.UserID, info.ResetAt)
		if err != nil {
			return "", "", "", fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		prompt, err := a.selector.RandomPrompt(p.ID)
		if err != nil {
			return "", "", "", fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return p.SystemPrompt, prompt, p.ID, nil
	}
}

// resolveSaying serves a cache hit with probability reusePercent, otherwise
// calls the generator.
func (a *Arbiter) resolveSaying(ctx context.Context, systemPrompt, userPrompt, presetID string) (models.Saying, bool, error) {
	cached, ok, err := a.store.FindCached(ctx, userPrompt, presetID)
	if err != nil {
		logrus.WithError(err).Error("cache lookup failed, generating instead")
		ok = false
	}
	if ok && a.picker.IntN(100) < reusePercent {
		cached.Source = models.SourceCached
		cached.CreatedAt = time.Now().UTC()
		return cached, false, nil
	}

	saying, err := a.gen.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return models.Saying{}, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	saying.PresetID = presetID

	return saying, true, nil
}

// Status reports the user's quota state, last saying and pinned preset. A
// user without a window yet reports full quota and the default preset.
func (a *Arbiter) Status(ctx context.Context, userID string) (Status, error) {
	info, ok := a.limiter.Info(userID)
	if !ok {
		st := Status{
			UserID:    userID,
			CanQuery:  true,
			Remaining: a.limiter.Max(),
		}
		if p, err := a.catalog.Default(); err == nil {
			st.SelectedPreset = &p
		} else {
			logrus.WithError(err).Error("failed to get default preset")
		}
		return st, nil
	}

	st := Status{
		UserID:    userID,
		CanQuery:  info.Remaining > 0,
		Remaining: info.Remaining,
		ResetAt:   &info.ResetAt,
	}

	if last, ok, err := a.store.LastSaying(ctx, userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to read last saying")
	} else if ok {
		st.LastSaying = &last
	}

	if info.Remaining > 0 {
		if p, err := a.selector.SelectOrReuse(userID, info.ResetAt); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("failed to select preset")
		} else {
			st.SelectedPreset = &p
		}
	}

	return st, nil
}

// History returns the user's saying history, newest first.
func (a *Arbiter) History(ctx context.Context, userID string, limit int) ([]models.Saying, error) {
	return a.store.Sayings(ctx, userID, limit)
}

// LastSaying returns the user's most recent saying.
func (a *Arbiter) LastSaying(ctx context.Context, userID string) (models.Saying, error) {
	saying, ok, err := a.store.LastSaying(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to read last saying")
		ok = false
	}
	if !ok {
		return models.Saying{}, fmt.Errorf("%w: user has no saved sayings", ErrNotFound)
	}
	return saying, nil
}
