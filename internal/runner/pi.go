package runner

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/subprocess"
)

// piResumeRE matches "pi --session <path>" appearing in message or reply
// text, per the example in spec §4.3.
var piResumeRE = regexp.MustCompile(`\bpi --session (\S+)`)

// NewPi builds the Pi engine runner. Invocation form per spec §6:
// "pi --print --mode json [--session <path>] <prompt>".
func NewPi(mgr *subprocess.Manager) *CLIRunner {
	return New(Spec{
		EngineID:  "pi",
		BuildArgv: piArgv,
		Translate: translatePi,
		Resolve:   ResolvePiResume,
	}, mgr)
}

func piArgv(prompt string, resume *model.ResumeToken) ([]string, []byte) {
	argv := []string{"pi", "--print", "--mode", "json"}
	if resume != nil && resume.SessionPath != "" {
		argv = append(argv, "--session", resume.SessionPath)
	}
	argv = append(argv, prompt)
	return argv, nil
}

// ResolvePiResume implements Runner.ResolveResume for Pi.
func ResolvePiResume(text string) *model.ResumeToken {
	m := piResumeRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &model.ResumeToken{EngineID: "pi", Raw: m[0], SessionPath: m[1]}
}

// piRecord is a representative shape of pi's "--mode json" dialect; the
// exact schema is an external collaborator.
type piRecord struct {
	Event       string `json:"event"`
	SessionPath string `json:"session_path"`
	Step        struct {
		ID     string `json:"id"`
		Label  string `json:"label"`
		Status string `json:"status"`
		Detail string `json:"detail"`
	} `json:"step"`
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

func translatePi(f *model.EventFactory, line string) ([]model.Event, error) {
	var rec piRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("pi: %w", err)
	}

	if rec.SessionPath != "" {
		f.ObserveResume(model.ResumeToken{EngineID: "pi", Raw: "pi --session " + rec.SessionPath, SessionPath: rec.SessionPath})
	}

	switch rec.Event {
	case "session_start":
		// cli_runner.go already emits the run's one Started event before
		// spawning the child; the session path is only captured above.
		return nil, nil
	case "step":
		switch rec.Step.Status {
		case "started":
			return []model.Event{f.ActionStartedEvt(rec.Step.ID, "step", rec.Step.Label)}, nil
		case "done":
			return []model.Event{f.ActionCompletedEvt(rec.Step.ID, model.ActionDone, rec.Step.Detail)}, nil
		case "error":
			return []model.Event{f.ActionCompletedEvt(rec.Step.ID, model.ActionError, rec.Step.Detail)}, nil
		}
		return nil, nil
	case "error":
		return []model.Event{f.CompletedEvt(false, "", rec.Error)}, nil
	case "session_end":
		return []model.Event{f.CompletedEvt(true, rec.Answer, "")}, nil
	default:
		return nil, nil
	}
}
