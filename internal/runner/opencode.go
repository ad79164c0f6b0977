package runner

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/subprocess"
)

// opencodeResumeRE matches "opencode run --continue <id>" appearing in
// message or reply text.
var opencodeResumeRE = regexp.MustCompile(`\bopencode run --continue ([A-Za-z0-9._-]+)`)

// NewOpencode builds the OpenCode engine runner. Invocation form per spec
// §6: "opencode run --format json [--continue <id>]".
func NewOpencode(mgr *subprocess.Manager) *CLIRunner {
	return New(Spec{
		EngineID:  "opencode",
		BuildArgv: opencodeArgv,
		Translate: translateOpencode,
		Resolve:   ResolveOpencodeResume,
	}, mgr)
}

func opencodeArgv(prompt string, resume *model.ResumeToken) ([]string, []byte) {
	argv := []string{"opencode", "run", "--format", "json"}
	if resume != nil && resume.SessionID != "" {
		argv = append(argv, "--continue", resume.SessionID)
	}
	argv = append(argv, prompt)
	return argv, nil
}

// ResolveOpencodeResume implements Runner.ResolveResume for OpenCode.
func ResolveOpencodeResume(text string) *model.ResumeToken {
	m := opencodeResumeRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &model.ResumeToken{EngineID: "opencode", Raw: m[0], SessionID: m[1]}
}

// opencodeRecord is a representative shape of opencode's "run --format
// json" dialect; the exact schema is an external collaborator.
type opencodeRecord struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Part      struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Tool  string `json:"tool"`
		Text  string `json:"text"`
		State string `json:"state"`
	} `json:"part"`
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

func translateOpencode(f *model.EventFactory, line string) ([]model.Event, error) {
	var rec opencodeRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("opencode: %w", err)
	}

	if rec.SessionID != "" {
		f.ObserveResume(model.ResumeToken{EngineID: "opencode", Raw: "opencode run --continue " + rec.SessionID, SessionID: rec.SessionID})
	}

	switch rec.Type {
	case "session.start":
		// cli_runner.go already emits the run's one Started event before
		// spawning the child; the session id is only captured above.
		return nil, nil
	case "part.updated":
		switch rec.Part.Type {
		case "tool":
			switch rec.Part.State {
			case "running":
				return []model.Event{f.ActionStartedEvt(rec.Part.ID, "tool", rec.Part.Tool)}, nil
			case "completed":
				return []model.Event{f.ActionCompletedEvt(rec.Part.ID, model.ActionDone, rec.Part.Text)}, nil
			case "error":
				return []model.Event{f.ActionCompletedEvt(rec.Part.ID, model.ActionError, rec.Part.Text)}, nil
			}
			return nil, nil
		case "text":
			return []model.Event{f.ActionNote("message", "agent message", model.ActionDone, rec.Part.Text)}, nil
		}
		return nil, nil
	case "session.error":
		return []model.Event{f.CompletedEvt(false, "", rec.Error)}, nil
	case "session.idle":
		return []model.Event{f.CompletedEvt(true, rec.Answer, "")}, nil
	default:
		return nil, nil
	}
}
