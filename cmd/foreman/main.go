package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpataki/foreman/internal/config"
	"github.com/mpataki/foreman/internal/executor"
	"github.com/mpataki/foreman/internal/flow"
	"github.com/mpataki/foreman/internal/workspace"
)

var (
	cfgFile string
	initErr error
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "foreman [input-file]",
		Short: "Plan-and-execute loop for AI coding agents",
		Long: `Foreman asks a planning agent to break a plan into task files, runs each
task with a worker agent, archives finished tasks and records them in a
ledger, then plans again until there is nothing left to do.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runInteractive,
	}

	cobra.OnInitialize(func() { initErr = config.Init(cfgFile) })
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .foreman/config.yaml, then ~/.config/foreman/config.yaml)")
	addFlowFlags(rootCmd)

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newKillCommand())
	rootCmd.AddCommand(newResumeCommand())
	rootCmd.AddCommand(newResolveCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig returns the validated configuration assembled by config.Init.
func loadConfig() (*config.Config, error) {
	if initErr != nil {
		return nil, initErr
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func addFlowFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "plan file to work from")
	cmd.Flags().StringP("text", "t", "", "plan text to work from")
	cmd.Flags().String("planner", "", "planning executor (claude, codex, gemini)")
	cmd.Flags().String("worker", "", "execution executor (claude, codex, gemini)")
	cmd.Flags().Int("max-iterations", -1, "stop after N cycles (0 = unlimited)")
	cmd.MarkFlagsMutuallyExclusive("input", "text")
}

// flowInput builds the input from --input, --text or a positional file.
func flowInput(cmd *cobra.Command, args []string) (flow.Input, error) {
	path, _ := cmd.Flags().GetString("input")
	text, _ := cmd.Flags().GetString("text")
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	switch {
	case path != "" && text != "":
		return flow.Input{}, errors.New("give either an input file or --text, not both")
	case text != "":
		return flow.TextInput(text), nil
	case path != "":
		return flow.FileInput(path), nil
	default:
		return flow.Input{}, errors.New("no input: pass a plan file or --text")
	}
}

// applyFlowFlags overrides configured executors and iteration limit.
func applyFlowFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("planner"); v != "" {
		cfg.Planner = v
	}
	if v, _ := cmd.Flags().GetString("worker"); v != "" {
		cfg.Worker = v
	}
	if v, _ := cmd.Flags().GetInt("max-iterations"); v >= 0 {
		cfg.MaxIterations = v
	}
}

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace layout and a default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}

			ws, err := workspace.Create(projectDir, cfg.Layout())
			if err != nil {
				return fmt.Errorf("failed to create workspace: %w", err)
			}
			fmt.Printf("Workspace: %s\n", ws.Root)
			fmt.Printf("Pending:   %s\n", ws.PendingDir)
			fmt.Printf("Done:      %s\n", ws.DoneDir)

			path := config.ProjectConfigFile(projectDir)
			err = cfg.WriteFile(path, force)
			switch {
			case errors.Is(err, config.ErrConfigExists):
				fmt.Printf("Config:    %s (kept existing, use --force to overwrite)\n", path)
			case err != nil:
				return fmt.Errorf("failed to write config: %w", err)
			default:
				fmt.Printf("Config:    %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <command>",
		Short: "Show how a command name resolves (PATH or shell)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := executor.Resolve(args[0])
			switch {
			case res.Kind == executor.KindNotFound:
				return fmt.Errorf("%w: %s", executor.ErrCommandNotFound, args[0])
			case res.Path != "":
				fmt.Printf("%s: %s (%s)\n", res.Name, res.Kind, res.Path)
			default:
				fmt.Printf("%s: %s (launched through the login shell)\n", res.Name, res.Kind)
			}
			return nil
		},
	}
}
