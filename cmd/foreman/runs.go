package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpataki/foreman/internal/config"
	"github.com/mpataki/foreman/internal/flow"
	"github.com/mpataki/foreman/internal/models"
	"github.com/mpataki/foreman/internal/storage"
	"github.com/mpataki/foreman/internal/tui"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [input-file]",
		Short: "Run the flow without the TUI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, input, err := prepare(cmd, args)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.runHeadless(input)
		},
	}

	addFlowFlags(cmd)
	return cmd
}

// openStore opens the run journal alone, for the query commands.
func openStore() (*storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func parseRunID(arg string) (int64, error) {
	runID, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run ID: %w", err)
	}
	return runID, nil
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			for _, run := range runs {
				fmt.Printf("#%-4d %-24s %-10s %s\n",
					run.ID, tui.FormatStatus(run.Status),
					storage.FormatTimeAgo(run.StartedAt),
					truncate(describeInput(run), 50))
			}

			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "number of runs to show")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run and its phase history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			fmt.Printf("Run #%d\n", run.ID)
			fmt.Printf("Status:   %s\n", tui.FormatStatus(run.Status))
			fmt.Printf("Project:  %s\n", run.ProjectDir)
			fmt.Printf("Input:    %s\n", truncate(describeInput(run), 70))
			fmt.Printf("Planner:  %s\n", run.Planner)
			fmt.Printf("Worker:   %s\n", run.Worker)
			fmt.Printf("Started:  %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), storage.FormatTimeAgo(run.StartedAt))
			if run.FinishedAt != nil {
				fmt.Printf("Finished: %s (took %s)\n", run.FinishedAt.Format("2006-01-02 15:04:05"), run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
			} else {
				fmt.Printf("PID:      %d\n", run.PID)
			}
			if run.Error != "" {
				fmt.Printf("Error:    %s\n", run.Error)
			}

			phases, err := store.GetPhases(runID)
			if err != nil {
				return err
			}

			if len(phases) > 0 {
				fmt.Println("\nPhases:")
				for _, p := range phases {
					line := fmt.Sprintf("  %3d. %s  %s", p.Seq, p.At.Format("15:04:05"), p.Phase)
					if p.Detail != "" {
						line += " [" + p.Detail + "]"
					}
					fmt.Println(line)
				}
			}

			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a finished run from the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if !run.Status.IsFinished() {
				return fmt.Errorf("run #%d is still running; kill it first", runID)
			}

			if err := store.DeleteRun(runID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			fmt.Printf("Deleted run #%d\n", runID)
			return nil
		},
	}
}

func newKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <run-id>",
		Short: "Ask a running foreman process to stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if run.Status.IsFinished() {
				return fmt.Errorf("run #%d is not running (%s)", runID, run.Status)
			}
			if run.PID <= 0 || run.PID == os.Getpid() {
				return fmt.Errorf("run #%d has no process to signal", runID)
			}

			err = signalProcess(run.PID)
			if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
				// The process died without finishing its record.
				if err := store.FinishRun(runID, models.RunStatusCancelled, "process exited"); err != nil {
					return err
				}
				fmt.Printf("Run #%d was stale; marked cancelled\n", runID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to signal process %d: %w", run.PID, err)
			}

			fmt.Printf("Sent interrupt to run #%d (pid %d)\n", runID, run.PID)
			return nil
		},
	}
}

func signalProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(os.Interrupt)
}

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Start a new run with the input and project of an earlier one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			prev, err := lookupRun(cfg, runID)
			if err != nil {
				return err
			}
			if !prev.Status.IsFinished() {
				return fmt.Errorf("run #%d is still running", runID)
			}

			cfg.Planner = strings.ToLower(prev.Planner)
			cfg.Worker = strings.ToLower(prev.Worker)
			applyFlowFlags(cmd, cfg)

			input := flow.TextInput(prev.Input)
			if prev.InputFile != "" {
				input = flow.FileInput(prev.InputFile)
			}

			s, err := openSession(cfg, prev.ProjectDir)
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Printf("Resuming run #%d in %s\n", runID, prev.ProjectDir)
			if isInteractive() {
				return s.runTUI(input)
			}
			return s.runHeadless(input)
		},
	}

	cmd.Flags().String("planner", "", "planning executor (default: the run's planner)")
	cmd.Flags().String("worker", "", "execution executor (default: the run's worker)")
	cmd.Flags().Int("max-iterations", -1, "stop after N cycles (0 = unlimited)")
	return cmd
}

func lookupRun(cfg *config.Config, runID int64) (*models.Run, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	run, err := store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func describeInput(run *models.Run) string {
	if run.InputFile != "" {
		return run.InputFile
	}
	return strings.Join(strings.Fields(run.Input), " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
