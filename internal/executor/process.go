package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mpataki/foreman/internal/shutdown"
	"golang.org/x/sync/errgroup"
)

// spawnSpec describes one tool invocation.
type spawnSpec struct {
	command string
	args    []string
	dir     string

	// parseStdout, if set, returns a fresh per-invocation transform from one
	// raw stdout line to the lines forwarded to the sink.
	parseStdout func() func(string) []string
}

// spawn runs spec to completion, forwarding output to sink.
//
// If ctx is cancelled first the process tree is killed and ErrSignaled is
// returned. Otherwise both output readers are joined before the exit code is
// returned, so nothing is sent to sink after spawn returns.
func spawn(ctx context.Context, spec spawnSpec, sink chan<- OutputLine) (int, error) {
	if ctx.Err() != nil {
		return -1, shutdown.ErrSignaled
	}

	cmd, err := command(Resolve(spec.command), spec.args)
	if err != nil {
		return -1, err
	}
	cmd.Dir = spec.dir
	cmd.Stdin = nil
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", spec.command, err)
	}

	var parse func(string) []string
	if spec.parseStdout != nil {
		parse = spec.parseStdout()
	}

	abort := make(chan struct{})
	var readers errgroup.Group
	readers.Go(func() error { return forward(stdout, Stdout, parse, sink, abort) })
	readers.Go(func() error { return forward(stderr, Stderr, nil, sink, abort) })

	// Pipes must be drained before Wait closes them.
	done := make(chan error, 1)
	go func() {
		readErr := readers.Wait()
		waitErr := cmd.Wait()
		if waitErr == nil && readErr != nil {
			waitErr = fmt.Errorf("read %s output: %w", spec.command, readErr)
		}
		done <- waitErr
	}()

	select {
	case <-ctx.Done():
		killProcessTree(cmd)
		close(abort)
		_ = stdout.Close()
		_ = stderr.Close()
		<-done
		return -1, shutdown.ErrSignaled
	case err := <-done:
		return exitStatus(err)
	}
}

// forward reads r line by line and sends each line to sink until EOF or abort.
func forward(r io.Reader, stream Stream, parse func(string) []string, sink chan<- OutputLine, abort <-chan struct{}) error {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			line := strings.TrimRight(raw, "\r\n")
			texts := []string{line}
			if parse != nil {
				texts = parse(line)
			}
			for _, text := range texts {
				select {
				case sink <- OutputLine{Stream: stream, Text: text}:
				case <-abort:
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
