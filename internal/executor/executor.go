// Package executor launches the external AI command-line tools that plan and
// execute work, streams their output line by line and kills them on
// cancellation.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Stream identifies which output pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// OutputLine is one line of tool output.
type OutputLine struct {
	Stream Stream
	Text   string
}

// Executor runs one invocation of an external tool.
//
// Implementations are stateless values and may be shared between goroutines.
// Execute sends output to sink until it returns and never afterwards. A
// non-zero exit code is reported through the int result, not as an error;
// errors mean the tool could not be run or the context was cancelled.
type Executor interface {
	Name() string
	Command() string
	Execute(ctx context.Context, input string, sink chan<- OutputLine) (int, error)
}

var constructors = map[string]func(dir string) Executor{
	"claude": func(dir string) Executor { return Claude{Dir: dir} },
	"codex":  func(dir string) Executor { return Codex{Dir: dir} },
	"gemini": func(dir string) Executor { return Gemini{Dir: dir} },
}

// Names returns the names accepted by ByName, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName returns the executor registered under name, running in dir.
func ByName(name, dir string) (Executor, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown executor %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(dir), nil
}
