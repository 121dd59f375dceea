package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func load(t *testing.T, script string) *Runtime {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hooks.lua")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(context.Background(), path, Info{ProjectDir: "/proj", Root: "/proj/.foreman", Input: "plan"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r == nil {
		t.Fatal("Load returned nil runtime")
	}
	t.Cleanup(r.Close)
	return r
}

func TestLoad(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		r, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.lua"), Info{})
		if err != nil || r != nil {
			t.Errorf("got %v, %v; want nil, nil", r, err)
		}
	})

	t.Run("syntax error fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.lua")
		os.WriteFile(path, []byte("function ("), 0644)
		if _, err := Load(context.Background(), path, Info{}); err == nil {
			t.Error("expected error for invalid script")
		}
	})
}

func TestNilRuntime(t *testing.T) {
	var r *Runtime
	if s, err := r.TaskInstructions("a.md"); s != "" || err != nil {
		t.Errorf("TaskInstructions = %q, %v", s, err)
	}
	if cont, err := r.AfterCycle(1, 0); !cont || err != nil {
		t.Errorf("AfterCycle = %v, %v", cont, err)
	}
	if logs := r.DrainLogs(); logs != nil {
		t.Errorf("DrainLogs = %v", logs)
	}
	r.SetIteration(3)
	r.Close()
}

func TestSandbox(t *testing.T) {
	r := load(t, `
function after_cycle()
  return dofile == nil and loadstring == nil and print == nil
    and math.random == nil and io == nil and os == nil
end`)
	cont, err := r.AfterCycle(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !cont {
		t.Error("unsafe globals are reachable from hooks")
	}
}

func TestTaskInstructions(t *testing.T) {
	r := load(t, `
function task_instructions(name)
  log("called for " .. name)
  if string.find(name, "test") then
    return "run tests (" .. context().project_dir .. ")"
  end
end`)

	got, err := r.TaskInstructions("002-test.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != "run tests (/proj)" {
		t.Errorf("got %q", got)
	}

	got, err = r.TaskInstructions("003-docs.md")
	if err != nil || got != "" {
		t.Errorf("got %q, %v; want empty", got, err)
	}

	logs := r.DrainLogs()
	if len(logs) != 2 || logs[0] != "called for 002-test.md" {
		t.Errorf("logs = %v", logs)
	}
	if r.DrainLogs() != nil {
		t.Error("logs not cleared")
	}
}

func TestTaskInstructionsWrongType(t *testing.T) {
	r := load(t, `function task_instructions(name) return {} end`)
	if _, err := r.TaskInstructions("a.md"); err == nil {
		t.Error("expected error for non-string result")
	}
}

func TestAfterCycle(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{"absent", `x = 1`, true},
		{"returns nothing", `function after_cycle() end`, true},
		{"returns true", `function after_cycle() return true end`, true},
		{"returns false", `function after_cycle(i, n) return i < 3 end`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := load(t, tt.script)
			got, err := r.AfterCycle(5, 0)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAfterCycleIteration(t *testing.T) {
	r := load(t, `function after_cycle(i, n) return context().iteration == i and n == 2 end`)
	cont, err := r.AfterCycle(4, 2)
	if err != nil || !cont {
		t.Errorf("got %v, %v", cont, err)
	}
}

func TestContext(t *testing.T) {
	r := load(t, `
function task_instructions(name)
  local c = context()
  return table.concat({c.project_dir, c.root, c.input, tostring(c.iteration)}, "|")
end`)
	r.SetIteration(7)

	got, err := r.TaskInstructions("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if want := "/proj|/proj/.foreman|plan|7"; got != want {
		t.Errorf("context() = %q, want %q", got, want)
	}
}

func TestStuck(t *testing.T) {
	r := load(t, `function after_cycle() stuck("no progress") end`)
	cont, err := r.AfterCycle(1, 1)
	if !errors.Is(err, ErrStuck) {
		t.Fatalf("err = %v, want ErrStuck", err)
	}
	if cont {
		t.Error("stuck must stop the flow")
	}
	if !strings.Contains(err.Error(), "no progress") {
		t.Errorf("reason missing from %q", err)
	}
}

func TestRuntimeErrorKeepsGoing(t *testing.T) {
	r := load(t, `function after_cycle() error("boom") end`)
	cont, err := r.AfterCycle(1, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !cont {
		t.Error("a failing hook must not stop the flow")
	}
}

func TestCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.lua")
	os.WriteFile(path, []byte(`function after_cycle() while true do end end`), 0644)
	ctx, cancel := context.WithCancel(context.Background())
	r, err := Load(ctx, path, Info{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	cancel()
	if _, err := r.AfterCycle(1, 0); err == nil {
		t.Error("expected infinite loop to be stopped by cancelled context")
	}
}
