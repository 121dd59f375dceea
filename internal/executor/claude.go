package executor

import (
	"context"
	"encoding/json"
	"strings"
)

// Claude runs Claude Code in print mode with streaming JSON output.
type Claude struct {
	Dir string
}

func (Claude) Name() string    { return "Claude" }
func (Claude) Command() string { return "claude" }

func (c Claude) Execute(ctx context.Context, input string, sink chan<- OutputLine) (int, error) {
	return spawn(ctx, spawnSpec{
		command: c.Command(),
		args: []string{
			"-p",
			"--verbose",
			"--output-format", "stream-json",
			"--dangerously-skip-permissions",
			input,
		},
		dir:         c.Dir,
		parseStdout: newStreamParser,
	}, sink)
}

// Record types of Claude Code's stream-json output.
const (
	recordSystem    = "system"
	recordAssistant = "assistant"
	recordResult    = "result"

	subtypeInit    = "init"
	subtypeSuccess = "success"
)

// streamRecord is the envelope of one stream-json line. Unknown fields are ignored.
type streamRecord struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	Message   *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"message,omitempty"`
}

// newStreamParser returns a parser for one invocation. It keeps the
// session-started banner to a single line per invocation.
func newStreamParser() func(string) []string {
	announced := false
	return func(line string) []string {
		var rec streamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Type == "" {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			return []string{line}
		}

		switch rec.Type {
		case recordAssistant:
			if rec.Message == nil {
				return nil
			}
			var b strings.Builder
			for _, part := range rec.Message.Content {
				if part.Type == "text" {
					b.WriteString(part.Text)
				}
			}
			return splitLines(b.String())

		case recordResult:
			if rec.Subtype == subtypeSuccess && !rec.IsError {
				return splitLines(rec.Result)
			}
			status := rec.Subtype
			if status == "" {
				status = "error"
			}
			return []string{"[result: " + status + "]"}

		case recordSystem:
			if rec.Subtype != subtypeInit || announced {
				return nil
			}
			announced = true
			banner := "Session started"
			if rec.Model != "" {
				banner += " (" + rec.Model + ")"
			}
			return []string{banner}

		default:
			return nil
		}
	}
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
