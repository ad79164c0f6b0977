package runner

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/subprocess"
)

// codexResumeRE matches the runner-formatted command line a user might
// paste or that appears in a prior progress message's footer, e.g.
// "codex resume 018f2c3a-...".
var codexResumeRE = regexp.MustCompile(`\bcodex resume ([A-Za-z0-9._-]+)`)

// NewCodex builds the Codex engine runner. Invocation form per spec §6:
// "codex exec --json [resume <token>] -" with the prompt on stdin.
func NewCodex(mgr *subprocess.Manager) *CLIRunner {
	return New(Spec{
		EngineID:  "codex",
		BuildArgv: codexArgv,
		Translate: translateCodex,
		Resolve:   ResolveCodexResume,
	}, mgr)
}

func codexArgv(prompt string, resume *model.ResumeToken) ([]string, []byte) {
	argv := []string{"codex", "exec", "--json"}
	if resume != nil && resume.SessionID != "" {
		argv = append(argv, "resume", resume.SessionID)
	}
	argv = append(argv, "-")
	return argv, []byte(prompt)
}

// ResolveCodexResume implements Runner.ResolveResume for Codex.
func ResolveCodexResume(text string) *model.ResumeToken {
	m := codexResumeRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &model.ResumeToken{EngineID: "codex", Raw: m[0], SessionID: m[1]}
}

// codexRecord is the subset of Codex's "exec --json" dialect this
// translator understands: a discriminated event envelope with a "msg"
// payload. The exact wire schema is an external collaborator (spec §1);
// this is a representative shape sufficient to drive the domain model.
type codexRecord struct {
	Msg struct {
		Type             string `json:"type"`
		CallID           string `json:"call_id"`
		Command          string `json:"command"`
		ExitCode         *int   `json:"exit_code"`
		AggregatedOutput string `json:"aggregated_output"`
		Message          string `json:"message"`
		SessionID         string `json:"session_id"`
	} `json:"msg"`
}

func translateCodex(f *model.EventFactory, line string) ([]model.Event, error) {
	var rec codexRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("codex: %w", err)
	}

	if rec.Msg.SessionID != "" {
		f.ObserveResume(model.ResumeToken{EngineID: "codex", Raw: "codex resume " + rec.Msg.SessionID, SessionID: rec.Msg.SessionID})
	}

	switch rec.Msg.Type {
	case "session_configured":
		return nil, nil
	case "task_started":
		// cli_runner.go already emits the run's one Started event before
		// spawning the child; this only updates the resume token above.
		return nil, nil
	case "exec_command_begin":
		return []model.Event{f.ActionStartedEvt(rec.Msg.CallID, "shell", rec.Msg.Command)}, nil
	case "exec_command_end":
		status := model.ActionDone
		if rec.Msg.ExitCode != nil && *rec.Msg.ExitCode != 0 {
			status = model.ActionWarning
		}
		return []model.Event{f.ActionCompletedEvt(rec.Msg.CallID, status, rec.Msg.AggregatedOutput)}, nil
	case "agent_message":
		return []model.Event{f.ActionNote("message", "agent message", model.ActionDone, rec.Msg.Message)}, nil
	case "task_complete":
		return []model.Event{f.CompletedEvt(true, rec.Msg.Message, "")}, nil
	case "error":
		return []model.Event{f.CompletedEvt(false, "", rec.Msg.Message)}, nil
	default:
		return nil, nil
	}
}
