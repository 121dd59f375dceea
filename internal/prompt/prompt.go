// Package prompt builds the literal text handed to the planning and
// execution agents.
package prompt

import (
	"fmt"
	"strings"
)

// Section tags wrapping dynamic payloads.
const (
	TagPlan      = "PLAN"
	TagPending   = "PENDING_TASKS"
	TagCompleted = "COMPLETED_TASKS"
	TagTask      = "TASK"
)

// Builder assembles prompts for one project.
type Builder struct {
	// PendingDir is where the planner must write new task files, as it
	// should appear in the prompt (normally relative to the project).
	PendingDir string

	// Guidelines are project instruction files, relative to the project.
	Guidelines []string

	// MaxPayloadBytes caps each embedded payload. Zero means
	// DefaultMaxPayloadBytes.
	MaxPayloadBytes int
}

func (b Builder) max() int {
	if b.MaxPayloadBytes <= 0 {
		return DefaultMaxPayloadBytes
	}
	return b.MaxPayloadBytes
}

// Planning builds the prompt asking the planner to write the next batch of
// task files.
func (b Builder) Planning(plan, pendingSummary, completedSummary string) string {
	var s strings.Builder
	s.WriteString(planningRole)
	s.WriteString("\n\n")
	fmt.Fprintf(&s, planningProcess, b.PendingDir)
	s.WriteString("\n\n")
	s.WriteString(taskFormat)
	s.WriteString("\n\n")
	s.WriteString(planningRules)
	b.writeGuidelines(&s)

	s.WriteString("\n\n## Plan\n\n")
	s.WriteString(wrap(TagPlan, plan, b.max()))
	s.WriteString("\n\n## Pending tasks\n\n")
	s.WriteString(wrap(TagPending, orNone(pendingSummary), b.max()))
	s.WriteString("\n\n## Completed tasks\n\n")
	s.WriteString(wrap(TagCompleted, orNone(completedSummary), b.max()))
	s.WriteString("\n")
	return s.String()
}

// Execution builds the prompt for carrying out one task file. extra is
// appended verbatim as additional instructions when non-empty.
func (b Builder) Execution(taskName, taskContent, completedSummary, extra string) string {
	var s strings.Builder
	s.WriteString(executionRole)
	s.WriteString("\n\n")
	s.WriteString(executionRules)
	b.writeGuidelines(&s)
	if extra = strings.TrimSpace(extra); extra != "" {
		s.WriteString("\n\n## Additional instructions\n\n")
		s.WriteString(extra)
	}

	s.WriteString("\n\n## Completed tasks\n\n")
	s.WriteString(wrap(TagCompleted, orNone(completedSummary), b.max()))
	fmt.Fprintf(&s, "\n\n## Your task (%s)\n\n", taskName)
	s.WriteString(wrap(TagTask, taskContent, b.max()))
	s.WriteString("\n")
	return s.String()
}

func (b Builder) writeGuidelines(s *strings.Builder) {
	if len(b.Guidelines) == 0 {
		return
	}
	s.WriteString("\n\n## Project guidelines\n\nRead and follow these files before making changes:\n")
	for _, g := range b.Guidelines {
		s.WriteString("- ")
		s.WriteString(g)
		s.WriteString("\n")
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

const planningRole = `# Role

You are the planning agent of an automated plan-then-execute loop. You do not
write code. You break the plan below into small, independently executable task
files that another agent will carry out one at a time, in file name order.`

const planningProcess = `# Process

1. Read the plan.
2. Read the completed tasks. Those are done; never schedule them again.
3. Read the pending tasks. Those are already scheduled; do not duplicate them.
4. Inspect the project to learn what is actually implemented.
5. Write the next tasks, one markdown file each, into %s. Name files with a
   zero-padded sequence number and a short slug, for example 001-add-config.md.
6. If the plan is fully implemented and nothing remains, write no files.`

const taskFormat = `# Task file format

    # Task: <short title>

    ## Objective
    <one paragraph: what must be true when this task is done>

    ## Steps
    <numbered list of concrete steps>

    ## Acceptance criteria
    <bullet list of checks the executing agent can verify>`

const planningRules = `# Rules

- Do not modify source code, tests, or documentation yourself.
- Do not edit, rename, or delete existing task files.
- Keep each task small enough to finish in one session.
- Each task must make sense without reading the other task files.`

const executionRole = `# Role

You are the execution agent of an automated plan-then-execute loop. Carry out
exactly the task below in the current project, then stop.`

const executionRules = `# Rules

- Do only what the task asks; leave other work to later tasks.
- Do not create, edit, or delete task files or the task ledger.
- Keep the project building and its tests passing.
- If the task is already done, verify it and finish without changes.`
