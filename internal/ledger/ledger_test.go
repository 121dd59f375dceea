package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractCompletedTasksSummary(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no block", "plan text", ""},
		{"well formed", "plan\n<COMPLETED_TASKS>\n- a.md\n- b.md\n</COMPLETED_TASKS>\n", "- a.md\n- b.md"},
		{"missing close", "plan\n<COMPLETED_TASKS>\n- a.md\n", ""},
		{"missing open", "plan\n- a.md\n</COMPLETED_TASKS>", ""},
		{"out of order", "</COMPLETED_TASKS>\n- a.md\n<COMPLETED_TASKS>", ""},
		{"empty block", "<COMPLETED_TASKS></COMPLETED_TASKS>", ""},
		{"first pair wins", "<COMPLETED_TASKS>x</COMPLETED_TASKS><COMPLETED_TASKS>y</COMPLETED_TASKS>", "x"},
		{"stray open before block", "see <COMPLETED_TASKS> below\n<COMPLETED_TASKS>\n- a.md\n</COMPLETED_TASKS>", "- a.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCompletedTasksSummary(tt.text); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpsertCompletedTaskSummary(t *testing.T) {
	t.Run("appends block when none exists", func(t *testing.T) {
		got := UpsertCompletedTaskSummary("Build a thing", "- .foreman/done/a.md")
		want := "Build a thing\n\n<COMPLETED_TASKS>\n- .foreman/done/a.md\n</COMPLETED_TASKS>\n"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("appends block to empty text", func(t *testing.T) {
		got := UpsertCompletedTaskSummary("", "- a.md")
		if got != "<COMPLETED_TASKS>\n- a.md\n</COMPLETED_TASKS>\n" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("inserts before close tag preserving surroundings", func(t *testing.T) {
		text := "head\n<COMPLETED_TASKS>\n- a.md\n</COMPLETED_TASKS>\ntail"
		got := UpsertCompletedTaskSummary(text, "- b.md")
		want := "head\n<COMPLETED_TASKS>\n- a.md\n- b.md\n</COMPLETED_TASKS>\ntail"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("adds newline only when needed", func(t *testing.T) {
		got := UpsertCompletedTaskSummary("<COMPLETED_TASKS>- a.md</COMPLETED_TASKS>", "- b.md")
		want := "<COMPLETED_TASKS>- a.md\n- b.md\n</COMPLETED_TASKS>"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, text := range []string{"", "plan", "plan\n<COMPLETED_TASKS>\n- x.md\n</COMPLETED_TASKS>\n"} {
			once := UpsertCompletedTaskSummary(text, "- a.md")
			twice := UpsertCompletedTaskSummary(once, "- a.md")
			if once != twice {
				t.Errorf("upsert not idempotent for %q: %q != %q", text, once, twice)
			}
			if n := strings.Count(twice, "- a.md"); n != 1 {
				t.Errorf("line appears %d times, want 1", n)
			}
		}
	})

	t.Run("prose outside the block does not count as recorded", func(t *testing.T) {
		text := "Remember to write - a.md first"
		got := UpsertCompletedTaskSummary(text, "- a.md")
		if !Contains(got, "- a.md") {
			t.Errorf("line not recorded in block: %q", got)
		}
	})

	t.Run("unclosed open tag in prose keeps the block whole", func(t *testing.T) {
		text := "Plan\n<COMPLETED_TASKS>\nstray prose\n"
		got := UpsertCompletedTaskSummary(text, "- a.md")
		want := text + "\n<COMPLETED_TASKS>\n- a.md\n</COMPLETED_TASKS>\n"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		lines := CompletedLines(got)
		if len(lines) != 1 || lines[0] != "- a.md" {
			t.Errorf("CompletedLines = %q, want [- a.md]", lines)
		}
		if again := UpsertCompletedTaskSummary(got, "- b.md"); !strings.HasPrefix(again, text) || len(CompletedLines(again)) != 2 {
			t.Errorf("second upsert = %q", again)
		}
	})

	t.Run("surrounding whitespace is ignored", func(t *testing.T) {
		once := UpsertCompletedTaskSummary("plan", "  - a.md \n")
		if twice := UpsertCompletedTaskSummary(once, "- a.md"); twice != once {
			t.Errorf("got %q, want %q", twice, once)
		}
	})

	t.Run("blank line is a no-op", func(t *testing.T) {
		if got := UpsertCompletedTaskSummary("plan", "   "); got != "plan" {
			t.Errorf("got %q, want %q", got, "plan")
		}
	})
}

func TestCompletedLines(t *testing.T) {
	text := "plan\n<COMPLETED_TASKS>\n- a.md\n\n  - b.md  \n</COMPLETED_TASKS>"
	got := CompletedLines(text)
	if len(got) != 2 || got[0] != "- a.md" || got[1] != "- b.md" {
		t.Errorf("got %q", got)
	}
	if CompletedLines("plan") != nil {
		t.Error("expected nil for text without a block")
	}
}

func TestReferenceLine(t *testing.T) {
	project := t.TempDir()
	inside := filepath.Join(project, ".foreman", "done", "task.md")
	if got := ReferenceLine(project, inside); got != "- .foreman/done/task.md" {
		t.Errorf("got %q", got)
	}

	outside := filepath.Join(t.TempDir(), "other.md")
	if got := ReferenceLine(project, outside); got != "- "+filepath.ToSlash(outside) {
		t.Errorf("got %q, want absolute path", got)
	}
}

func TestSummarizeCompletedTasks(t *testing.T) {
	project := t.TempDir()
	paths := []string{
		filepath.Join(project, "done", "a.md"),
		filepath.Join(project, "done", "b.md"),
	}
	want := "- done/a.md\n- done/b.md"
	if got := SummarizeCompletedTasks(project, paths); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := SummarizeCompletedTasks(project, nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestSummarizeTaskFiles(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.md")
	long := filepath.Join(dir, "long.md")
	missing := filepath.Join(dir, "missing.md")
	if err := os.WriteFile(short, []byte("# Task\nDo it\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(long, []byte("1\n2\n3\n4\n5\n6\n7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got := SummarizeTaskFiles([]string{short, long, missing})
	want := "- short.md:\n# Task\nDo it" +
		"\n\n- long.md:\n1\n2\n3\n4\n5\n..." +
		"\n\n- missing.md:\n" + Unreadable
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.md")
	f := File{Path: path}

	text, ok, err := f.Load()
	if err != nil || ok || text != "" {
		t.Fatalf("Load() on missing file = %q, %v, %v", text, ok, err)
	}

	if err := f.Save("plan\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := f.Save("plan v2\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	text, ok, err = f.Load()
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if text != "plan v2\n" {
		t.Errorf("got %q, want %q", text, "plan v2\n")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
