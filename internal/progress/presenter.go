package progress

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/p0s/takopi/internal/model"
)

// Status glyphs and separators (spec.md is silent on the visual
// vocabulary, only on the elapsed-time format and the budget trim).
const (
	glyphRunning = "▸"
	glyphUpdate  = "↻"
	glyphDone    = "✓"
	glyphFail    = "✗"
	headerSep    = " · "
)

// DefaultBodyBudget is the default character budget for the body, per
// spec §4.5.
const DefaultBodyBudget = 3500

// MaxRecentActions bounds how many action lines the body shows, independent
// of the character budget, so a long session doesn't turn into a wall of
// terse one-liners that are individually short but collectively useless.
const MaxRecentActions = 12

const maxActionTitleLen = 80

// Presenter is the pure function ProgressState -> RenderedMessage from
// spec §4.5. It holds only static configuration, no mutable state.
type Presenter struct {
	BodyBudget int
	Now        func() time.Time
}

// NewPresenter builds a Presenter with the default body budget.
func NewPresenter() *Presenter {
	return &Presenter{BodyBudget: DefaultBodyBudget, Now: time.Now}
}

// Render composes header, body, and footer, trimming only the body to the
// character budget.
func (p *Presenter) Render(s State) model.RenderedMessage {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	elapsed := now().Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	header := formatHeader(elapsed, s)
	body := formatBody(s)
	footer := formatFooter(s)

	budget := p.BodyBudget
	if budget <= 0 {
		budget = DefaultBodyBudget
	}
	body = shorten(body, budget)

	var b strings.Builder
	b.WriteString(header)
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	if footer != "" {
		b.WriteString("\n")
		b.WriteString(footer)
	}
	// MarkdownV2 so the transport escapes any underscores/asterisks an
	// engine's free-form action titles or final answer happen to contain,
	// rather than have Telegram misinterpret them as formatting.
	return model.RenderedMessage{Text: b.String(), ParseMode: "MarkdownV2"}
}

// FormatElapsed renders a duration as "Xh Ym", "Xm Ys", or "Xs", exactly as
// required by spec §4.5.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

func formatHeader(elapsed time.Duration, s State) string {
	glyph := glyphRunning
	switch s.Status {
	case StatusOK:
		glyph = glyphDone
	case StatusError, StatusCancelled:
		glyph = glyphFail
	default:
		if len(s.Actions) > 0 {
			glyph = glyphUpdate
		}
	}
	engine := string(s.EngineID)
	if engine == "" {
		engine = "engine"
	}
	return fmt.Sprintf("%s %s%s%s", glyph, engine, headerSep, FormatElapsed(elapsed))
}

func formatBody(s State) string {
	actions := s.Actions
	if len(actions) > MaxRecentActions {
		actions = actions[len(actions)-MaxRecentActions:]
	}
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		lines = append(lines, formatActionLine(a))
	}
	return strings.Join(lines, "\n")
}

func formatActionLine(a model.Action) string {
	glyph := actionGlyph(a.Status)
	title := shorten(a.Title, maxActionTitleLen)
	if title == "" {
		title = a.Kind
	}
	line := fmt.Sprintf("%s %s", glyph, title)
	if a.Detail != "" {
		line += headerSep + shorten(a.Detail, maxActionTitleLen)
	}
	return line
}

func actionGlyph(status model.ActionStatus) string {
	switch status {
	case model.ActionDone:
		return glyphDone
	case model.ActionWarning, model.ActionError:
		return glyphFail
	case model.ActionRunning:
		return glyphUpdate
	default:
		return glyphRunning
	}
}

func formatFooter(s State) string {
	var lines []string
	if s.done {
		switch s.Status {
		case StatusOK:
			if s.Answer != "" {
				lines = append(lines, s.Answer)
			}
		case StatusCancelled:
			lines = append(lines, "cancelled")
		case StatusError:
			if s.Error != "" {
				lines = append(lines, "error: "+s.Error)
			}
		}
	}
	if s.ResumeKnown && s.Resume.Raw != "" {
		lines = append(lines, "resume: "+s.Resume.Raw)
	}
	return strings.Join(lines, "\n")
}

// shorten truncates text to at most max runes, appending an ellipsis when
// truncated.
func shorten(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
