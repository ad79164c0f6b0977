package progress

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/p0s/takopi/internal/model"
)

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
	}
	for _, c := range cases {
		if got := FormatElapsed(c.d); got != c.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestPresenterTrimsBodyPreservingHeaderAndFooter(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewState(start)
	s.EngineID = "codex"
	s.Resume = model.ResumeToken{EngineID: "codex", Raw: "codex resume abc"}
	s.ResumeKnown = true
	for i := 0; i < 50; i++ {
		s.Actions = append(s.Actions, model.Action{
			ID: "a", Kind: "shell", Status: model.ActionDone,
			Title: strings.Repeat("x", 100),
		})
	}

	p := &Presenter{BodyBudget: 200, Now: func() time.Time { return start.Add(90 * time.Second) }}
	rendered := p.Render(s)

	header := formatHeader(90*time.Second, s)
	footer := formatFooter(s)

	if !strings.HasPrefix(rendered.Text, header) {
		t.Fatalf("expected rendered text to start with header %q, got %q", header, rendered.Text)
	}
	if !strings.HasSuffix(rendered.Text, footer) {
		t.Fatalf("expected rendered text to end with footer %q, got %q", footer, rendered.Text)
	}

	body := strings.TrimSuffix(strings.TrimPrefix(rendered.Text, header+"\n"), "\n"+footer)
	if n := utf8.RuneCountInString(body); n > 200 {
		t.Fatalf("expected body length <= 200 characters, got %d", n)
	}
}

func TestPresenterCapsRecentActions(t *testing.T) {
	start := time.Now()
	s := NewState(start)
	for i := 0; i < MaxRecentActions+5; i++ {
		s.Actions = append(s.Actions, model.Action{ID: "a", Status: model.ActionDone, Title: "t"})
	}
	body := formatBody(s)
	if got := strings.Count(body, "\n") + 1; got != MaxRecentActions {
		t.Fatalf("expected %d action lines, got %d", MaxRecentActions, got)
	}
}
