package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mpataki/foreman/internal/executor"
	"github.com/mpataki/foreman/internal/logging"
	"github.com/mpataki/foreman/internal/workspace"
)

// minPayloadBytes keeps prompts from being truncated into uselessness.
const minPayloadBytes = 1024

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	for field, value := range map[string]string{
		"root":        c.Root,
		"pending_dir": c.PendingDir,
		"done_dir":    c.DoneDir,
		"ledger_file": c.LedgerFile,
	} {
		if strings.TrimSpace(value) == "" {
			errors = append(errors, ValidationError{Field: field, Value: value, Message: "must not be empty"})
		}
	}
	if c.PendingDir != "" && c.PendingDir == c.DoneDir {
		errors = append(errors, ValidationError{Field: "done_dir", Value: c.DoneDir, Message: "must differ from pending_dir"})
	}

	if _, err := workspace.CompilePatterns(c.TaskPatterns); err != nil {
		errors = append(errors, ValidationError{Field: "task_patterns", Value: c.TaskPatterns, Message: err.Error()})
	}

	errors = append(errors, c.validateExecutors()...)

	if c.MaxIterations < 0 {
		errors = append(errors, ValidationError{Field: "max_iterations", Value: c.MaxIterations, Message: "must be 0 (unlimited) or positive"})
	}

	errors = append(errors, c.validateRetry()...)

	if c.Prompt.MaxPayloadBytes < minPayloadBytes {
		errors = append(errors, ValidationError{
			Field:   "prompt.max_payload_bytes",
			Value:   c.Prompt.MaxPayloadBytes,
			Message: fmt.Sprintf("must be at least %d", minPayloadBytes),
		})
	}

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of " + strings.Join(logging.ValidLevels(), ", "),
		})
	}

	slices.SortStableFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errors
}

func (c *Config) validateExecutors() []ValidationError {
	var errors []ValidationError
	known := executor.Names()
	for field, name := range map[string]string{"planner": c.Planner, "worker": c.Worker} {
		if !slices.Contains(known, strings.ToLower(strings.TrimSpace(name))) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "must be one of " + strings.Join(known, ", "),
			})
		}
	}
	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError
	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{Field: "retry.max_attempts", Value: c.Retry.MaxAttempts, Message: "must be at least 1"})
	}
	if c.Retry.BaseInterval < 0 {
		errors = append(errors, ValidationError{Field: "retry.base_interval", Value: c.Retry.BaseInterval, Message: "must not be negative"})
	}
	if c.Retry.IntervalIncrement < 0 {
		errors = append(errors, ValidationError{Field: "retry.interval_increment", Value: c.Retry.IntervalIncrement, Message: "must not be negative"})
	}
	return errors
}
