package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/mpataki/foreman/internal/config"
	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/executor"
	"github.com/mpataki/foreman/internal/flow"
	"github.com/mpataki/foreman/internal/hooks"
	"github.com/mpataki/foreman/internal/logging"
	"github.com/mpataki/foreman/internal/models"
	"github.com/mpataki/foreman/internal/prompt"
	"github.com/mpataki/foreman/internal/shutdown"
	"github.com/mpataki/foreman/internal/storage"
	"github.com/mpataki/foreman/internal/tui"
	"github.com/mpataki/foreman/internal/workspace"
)

// eventBuffer keeps the runner from stalling on a slow renderer.
const eventBuffer = 256

// session holds what one invocation shares between the flow and its observer.
type session struct {
	cfg    *config.Config
	store  *storage.Storage
	logger *logging.Logger
	ws     *workspace.Workspace
	flag   *shutdown.Flag
}

func openSession(cfg *config.Config, projectDir string) (*session, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := logging.NopLogger()
	if dir := cfg.LogDir(); dir != "" {
		l, err := logging.NewLogger(dir, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	store, err := storage.New(cfg.DBPath())
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ws, err := workspace.Open(projectDir, cfg.Layout())
	if err != nil {
		store.Close()
		logger.Close()
		return nil, err
	}

	return &session{
		cfg:    cfg,
		store:  store,
		logger: logger,
		ws:     ws,
		flag:   shutdown.New(),
	}, nil
}

func (s *session) Close() {
	s.store.Close()
	s.logger.Close()
}

// handleSignals sets the flag on SIGINT or SIGTERM. A second signal exits.
func (s *session) handleSignals(onFirst func()) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-stop:
			return
		}
		s.flag.Set()
		if onFirst != nil {
			onFirst()
		}
		select {
		case <-sigCh:
			os.Exit(130)
		case <-stop:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}

// flowHandle is a started flow. Events must be drained before Wait returns.
type flowHandle struct {
	Run    *models.Run
	Runner *flow.Runner
	Events <-chan event.Event
	group  *errgroup.Group
}

func (h *flowHandle) Wait() error {
	return h.group.Wait()
}

// drain discards events until the stream closes.
func (h *flowHandle) drain() {
	for range h.Events {
	}
}

// start records a new run and launches the flow. The returned stream carries
// every event after it was journaled.
func (s *session) start(input flow.Input) (*flowHandle, error) {
	if input.Path != "" {
		abs, err := filepath.Abs(input.Path)
		if err != nil {
			return nil, err
		}
		input.Path = abs
	}

	planner, err := executor.ByName(s.cfg.Planner, s.ws.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	worker, err := executor.ByName(s.cfg.Worker, s.ws.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}

	hookRT, err := hooks.Load(s.flag.Context(), s.ws.HooksPath, hooks.Info{
		ProjectDir: s.ws.ProjectDir,
		Root:       s.ws.Root,
		Input:      input.Describe(),
	})
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		StartedAt:  time.Now(),
		ProjectDir: s.ws.ProjectDir,
		InputFile:  input.Path,
		Input:      input.Text,
		Planner:    planner.Name(),
		Worker:     worker.Name(),
		Status:     models.RunStatusRunning,
		PID:        os.Getpid(),
	}
	if _, err := s.store.CreateRun(run); err != nil {
		hookRT.Close()
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	logger := s.logger.WithRun(run.ID)
	logger.Info("run started", "input", input.Describe(), "planner", planner.Name(), "worker", worker.Name())

	raw := make(chan event.Event, eventBuffer)
	out := make(chan event.Event, eventBuffer)
	runner := flow.New(flow.Config{
		Planner:       planner,
		Worker:        worker,
		Workspace:     s.ws,
		Retry:         s.cfg.RetryPolicy(),
		MaxIterations: s.cfg.MaxIterations,
		Prompt: prompt.Builder{
			Guidelines:      prompt.DiscoverGuidelines(s.ws.ProjectDir),
			MaxPayloadBytes: s.cfg.Prompt.MaxPayloadBytes,
		},
		Hooks:  hookRT,
		Logger: logger,
	}, raw, s.flag)

	recorder := s.store.NewRecorder(run.ID, s.logger)
	g := &errgroup.Group{}
	g.Go(func() error {
		recorder.Tee(raw, out)
		return nil
	})
	g.Go(func() error {
		defer close(raw)
		defer hookRT.Close()
		err := runner.Run(input)
		logger.Info("run finished", "phase", event.Name(runner.Phase()))
		return err
	})

	return &flowHandle{Run: run, Runner: runner, Events: out, group: g}, nil
}

// prepare loads config, applies flags and opens a session in the working
// directory.
func prepare(cmd *cobra.Command, args []string) (*session, flow.Input, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, flow.Input{}, err
	}
	applyFlowFlags(cmd, cfg)

	input, err := flowInput(cmd, args)
	if err != nil {
		return nil, flow.Input{}, err
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return nil, flow.Input{}, err
	}
	s, err := openSession(cfg, projectDir)
	if err != nil {
		return nil, flow.Input{}, err
	}
	return s, input, nil
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

func runInteractive(cmd *cobra.Command, args []string) error {
	s, input, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	defer s.Close()

	if !isInteractive() {
		return s.runHeadless(input)
	}
	return s.runTUI(input)
}

func (s *session) runTUI(input flow.Input) error {
	h, err := s.start(input)
	if err != nil {
		return err
	}

	app := tui.NewApp(h.Events, s.flag, s.store, input.Describe())
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithoutSignalHandler())

	// Route signals through the App so it shows the stop and quits on Done.
	stop := s.handleSignals(func() { p.Send(tea.KeyMsg{Type: tea.KeyCtrlC}) })
	defer stop()

	_, uiErr := p.Run()
	if uiErr != nil {
		s.flag.Set()
	}
	h.drain()
	err = h.Wait()
	s.printSummary(h)
	if uiErr != nil {
		return fmt.Errorf("tui: %w", uiErr)
	}
	return err
}

func (s *session) runHeadless(input flow.Input) error {
	h, err := s.start(input)
	if err != nil {
		return err
	}

	stop := s.handleSignals(func() {
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping... (press Ctrl+C again to exit now)")
	})
	defer stop()

	for ev := range h.Events {
		printEvent(ev)
	}
	err = h.Wait()
	s.printSummary(h)
	return err
}

func printEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.Output:
		fmt.Println(tui.FormatLine(e.Line))
	case event.PhaseChanged:
		fmt.Println(tui.FormatLine(event.Line{Text: "» " + e.Phase.String(), Category: event.CategoryRunning}))
	}
}

func (s *session) printSummary(h *flowHandle) {
	sum := h.Runner.Summary()
	status := models.RunStatusCancelled
	if run, err := s.store.GetRun(h.Run.ID); err == nil {
		status = run.Status
	}
	fmt.Printf("Run #%d %s: %d cycle(s), %d task(s) completed, %d failed\n",
		h.Run.ID, tui.FormatStatus(status), sum.Cycles, sum.Completed, sum.Failed)
}
