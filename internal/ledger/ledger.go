// Package ledger implements the task ledger: the plan text followed by a
// single COMPLETED_TASKS block listing one reference line per finished task.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Block delimiters.
const (
	OpenTag  = "<COMPLETED_TASKS>"
	CloseTag = "</COMPLETED_TASKS>"
)

// bounds locates the first close tag that follows an open tag, and the open
// tag nearest before it. An unclosed open tag earlier in the text is prose.
// open is the index of the open tag, close the index of the close tag.
func bounds(text string) (open, close int, ok bool) {
	open = strings.Index(text, OpenTag)
	if open < 0 {
		return 0, 0, false
	}
	rel := strings.Index(text[open+len(OpenTag):], CloseTag)
	if rel < 0 {
		return 0, 0, false
	}
	close = open + len(OpenTag) + rel
	open += strings.LastIndex(text[open:close], OpenTag)
	return open, close, true
}

// ExtractCompletedTasksSummary returns the trimmed block body, or "" when the
// block is missing or malformed.
func ExtractCompletedTasksSummary(text string) string {
	open, close, ok := bounds(text)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text[open+len(OpenTag) : close])
}

// CompletedLines returns the non-empty trimmed lines of the block.
func CompletedLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(ExtractCompletedTasksSummary(text), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Contains reports whether the block already holds line.
func Contains(text, line string) bool {
	line = strings.TrimSpace(line)
	for _, l := range CompletedLines(text) {
		if l == line {
			return true
		}
	}
	return false
}

// UpsertCompletedTaskSummary adds line to the block unless an identical line
// is already recorded there. Text outside the block is preserved byte for
// byte. Without a well-formed block, a new one is appended.
func UpsertCompletedTaskSummary(text, line string) string {
	line = strings.TrimSpace(line)
	if line == "" || Contains(text, line) {
		return text
	}

	if _, close, ok := bounds(text); ok {
		before := text[:close]
		if !strings.HasSuffix(before, "\n") {
			before += "\n"
		}
		return before + line + "\n" + text[close:]
	}

	var b strings.Builder
	b.WriteString(text)
	switch {
	case text == "":
	case strings.HasSuffix(text, "\n"):
		b.WriteString("\n")
	default:
		b.WriteString("\n\n")
	}
	b.WriteString(OpenTag + "\n" + line + "\n" + CloseTag + "\n")
	return b.String()
}

// ReferenceLine builds the ledger line for a task file: "- " followed by the
// path relative to projectDir with forward slashes. Paths outside projectDir
// are kept absolute.
func ReferenceLine(projectDir, path string) string {
	ref := path
	if abs, err := filepath.Abs(path); err == nil {
		ref = abs
	}
	if projectDir != "" {
		if base, err := filepath.Abs(projectDir); err == nil {
			if rel, err := filepath.Rel(base, ref); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				ref = rel
			}
		}
	}
	return "- " + filepath.ToSlash(ref)
}

// SummarizeCompletedTasks renders one reference line per path.
func SummarizeCompletedTasks(projectDir string, paths []string) string {
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		lines = append(lines, ReferenceLine(projectDir, p))
	}
	return strings.Join(lines, "\n")
}

const (
	snippetLines = 5
	ellipsis     = "..."

	// Unreadable is used in place of a snippet when a file cannot be read.
	Unreadable = "(unable to read file)"
)

// SummarizeTaskFiles renders a short snippet of each file as
// "- <filename>:\n<snippet>", entries separated by a blank line.
func SummarizeTaskFiles(paths []string) string {
	entries := make([]string, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, fmt.Sprintf("- %s:\n%s", filepath.Base(p), snippet(p)))
	}
	return strings.Join(entries, "\n\n")
}

func snippet(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Unreadable
	}
	content := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	lines := strings.Split(content, "\n")
	if len(lines) <= snippetLines {
		return content
	}
	return strings.Join(lines[:snippetLines], "\n") + "\n" + ellipsis
}
