// Package router implements spec §4.7: inspecting incoming message text to
// pick which engine (and, if present, which resume token) should handle it.
package router

import (
	"context"
	"strings"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/runner"
	"github.com/p0s/takopi/internal/takopierr"
)

// Decision is the router's output: the chosen engine id, the prompt with
// any matched directive or resume line stripped, and the resume token (if
// any) to pass to that engine.
type Decision struct {
	EngineID model.EngineID
	Prompt   string
	Resume   *model.ResumeToken
}

// Router holds the runner registry and the configured default engine.
type Router struct {
	registry      *runner.Registry
	defaultEngine model.EngineID
	cache         *LastResumeCache
}

// New builds a Router over registry, falling back to defaultEngine when no
// prefix or resume match is found.
func New(registry *runner.Registry, defaultEngine model.EngineID) *Router {
	return &Router{registry: registry, defaultEngine: defaultEngine}
}

// WithCache attaches a LastResumeCache, consulted as a step between explicit
// resume matching and the default-engine fallback (see Route).
func (r *Router) WithCache(cache *LastResumeCache) *Router {
	r.cache = cache
	return r
}

// Route implements the first-match-wins algorithm from spec §4.7, with one
// enrichment: when threadID has a remembered resume token and neither an
// explicit prefix nor an explicit resume line was found, that remembered
// token is used ahead of the default-engine fallback. threadID may be empty
// to opt a caller out of the cache lookup/remember entirely.
func (r *Router) Route(threadID, text, replyText string) (Decision, error) {
	if r.registry.Len() == 0 {
		return Decision{}, takopierr.ErrNoEngines
	}

	// 1. Explicit engine prefix on the first line.
	if id, rest, ok := stripEnginePrefix(text); ok {
		if _, ok := r.registry.Get(id); !ok {
			return Decision{}, &takopierr.RunnerUnavailable{EngineID: string(id)}
		}
		return Decision{EngineID: id, Prompt: rest}, nil
	}

	// 2. Resume syntax, checked in stable registration order, text before
	// reply text.
	for _, rn := range r.registry.Ordered() {
		if tok := rn.ResolveResume(text); tok != nil {
			d := Decision{EngineID: rn.EngineID(), Prompt: stripMatch(text, tok.Raw), Resume: tok}
			r.remember(threadID, *tok)
			return d, nil
		}
	}
	for _, rn := range r.registry.Ordered() {
		if tok := rn.ResolveResume(replyText); tok != nil {
			// The resume line lives in the reply, not in text: text is
			// passed through untouched, per spec §8 scenario 2.
			d := Decision{EngineID: rn.EngineID(), Prompt: text, Resume: tok}
			r.remember(threadID, *tok)
			return d, nil
		}
	}

	// 2.5. Fall back to the last resume token remembered for this thread, if
	// its engine is still registered.
	if r.cache != nil && threadID != "" {
		if tok, ok := r.cache.Lookup(threadID); ok {
			if _, ok := r.registry.Get(tok.EngineID); ok {
				return Decision{EngineID: tok.EngineID, Prompt: text, Resume: &tok}, nil
			}
		}
	}

	// 3. Default engine, no resume token.
	if _, ok := r.registry.Get(r.defaultEngine); !ok {
		return Decision{}, &takopierr.RunnerUnavailable{EngineID: string(r.defaultEngine)}
	}
	return Decision{EngineID: r.defaultEngine, Prompt: text}, nil
}

func (r *Router) remember(threadID string, tok model.ResumeToken) {
	if r.cache == nil || threadID == "" {
		return
	}
	_ = r.cache.Remember(context.Background(), threadID, tok)
}

// stripEnginePrefix recognizes a first line of the form "/<engine_id>" and
// returns the engine id plus the remaining text with that line removed.
func stripEnginePrefix(text string) (model.EngineID, string, bool) {
	firstLine, rest, hasRest := cutFirstLine(text)
	firstLine = strings.TrimSpace(firstLine)
	if !strings.HasPrefix(firstLine, "/") {
		return "", "", false
	}
	id := strings.TrimPrefix(firstLine, "/")
	if id == "" {
		return "", "", false
	}
	if !hasRest {
		return model.EngineID(id), "", true
	}
	return model.EngineID(id), strings.TrimSpace(rest), true
}

func cutFirstLine(text string) (first, rest string, hasRest bool) {
	idx := strings.IndexByte(text, '\n')
	if idx < 0 {
		return text, "", false
	}
	return text[:idx], text[idx+1:], true
}

// stripMatch removes the first occurrence of raw from text, collapsing the
// surrounding whitespace it leaves behind. If raw only occurs in the reply
// text, text is returned unchanged by the caller rather than by this
// function.
func stripMatch(text, raw string) string {
	idx := strings.Index(text, raw)
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	out := text[:idx] + text[idx+len(raw):]
	return strings.TrimSpace(out)
}
