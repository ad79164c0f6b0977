package runner

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/subprocess"
)

// claudeResumeRE matches "claude --resume <id>" appearing in message or
// reply text.
var claudeResumeRE = regexp.MustCompile(`\bclaude --resume ([A-Za-z0-9._-]+)`)

// NewClaude builds the Claude engine runner. Invocation form per spec §6:
// "claude -p --output-format stream-json --verbose [--resume <id>]" with
// the prompt as a command-line argument.
func NewClaude(mgr *subprocess.Manager) *CLIRunner {
	return New(Spec{
		EngineID:  "claude",
		BuildArgv: claudeArgv,
		Translate: translateClaude,
		Resolve:   ResolveClaudeResume,
	}, mgr)
}

func claudeArgv(prompt string, resume *model.ResumeToken) ([]string, []byte) {
	argv := []string{"claude", "-p", "--output-format", "stream-json", "--verbose"}
	if resume != nil && resume.SessionID != "" {
		argv = append(argv, "--resume", resume.SessionID)
	}
	argv = append(argv, prompt)
	return argv, nil
}

// ResolveClaudeResume implements Runner.ResolveResume for Claude.
func ResolveClaudeResume(text string) *model.ResumeToken {
	m := claudeResumeRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &model.ResumeToken{EngineID: "claude", Raw: m[0], SessionID: m[1]}
}

// claudeRecord is a representative shape of "claude -p --output-format
// stream-json" records; the exact schema is an external collaborator.
type claudeRecord struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		ID      string `json:"id"`
		Content []struct {
			Type  string `json:"type"`
			Text  string `json:"text"`
			Name  string `json:"name"`
			Input any    `json:"input"`
		} `json:"content"`
	} `json:"message"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

func translateClaude(f *model.EventFactory, line string) ([]model.Event, error) {
	var rec claudeRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	if rec.SessionID != "" {
		f.ObserveResume(model.ResumeToken{EngineID: "claude", Raw: "claude --resume " + rec.SessionID, SessionID: rec.SessionID})
	}

	switch rec.Type {
	case "system":
		// cli_runner.go already emits the run's one Started event before
		// spawning the child; the session id is only captured above.
		return nil, nil
	case "assistant":
		var events []model.Event
		for _, block := range rec.Message.Content {
			switch block.Type {
			case "tool_use":
				events = append(events, f.ActionStartedEvt(rec.Message.ID+"-"+block.Name, "tool", block.Name))
			case "text":
				events = append(events, f.ActionNote("message", "agent message", model.ActionDone, block.Text))
			}
		}
		return events, nil
	case "result":
		if rec.IsError {
			return []model.Event{f.CompletedEvt(false, "", rec.Result)}, nil
		}
		return []model.Event{f.CompletedEvt(true, rec.Result, "")}, nil
	default:
		return nil, nil
	}
}
