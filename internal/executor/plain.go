package executor

import "context"

// Codex runs the Codex CLI non-interactively. Output is forwarded as-is.
type Codex struct {
	Dir string
}

func (Codex) Name() string    { return "Codex" }
func (Codex) Command() string { return "codex" }

func (c Codex) Execute(ctx context.Context, input string, sink chan<- OutputLine) (int, error) {
	return spawn(ctx, spawnSpec{
		command: c.Command(),
		args:    []string{"exec", "--dangerously-bypass-approvals-and-sandbox", input},
		dir:     c.Dir,
	}, sink)
}

// Gemini runs the Gemini CLI in prompt mode with automatic approvals.
type Gemini struct {
	Dir string
}

func (Gemini) Name() string    { return "Gemini" }
func (Gemini) Command() string { return "gemini" }

func (g Gemini) Execute(ctx context.Context, input string, sink chan<- OutputLine) (int, error) {
	return spawn(ctx, spawnSpec{
		command: g.Command(),
		args:    []string{"--yolo", "-p", input},
		dir:     g.Dir,
	}, sink)
}
