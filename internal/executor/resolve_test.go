package executor

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	skipOnWindows(t)

	t.Run("executable on PATH resolves directly", func(t *testing.T) {
		dir := t.TempDir()
		want := writeScript(t, dir, "foreman-test-tool", "exit 0")
		t.Setenv("PATH", dir)

		res := Resolve("foreman-test-tool")
		if res.Kind != KindDirect {
			t.Fatalf("Kind = %v, want %v", res.Kind, KindDirect)
		}
		if res.Path != want {
			t.Errorf("Path = %q, want %q", res.Path, want)
		}
	})

	t.Run("unknown name is not found", func(t *testing.T) {
		restore := shellLookup
		shellLookup = func(string) (string, error) { return "", errors.New("exit status 1") }
		t.Cleanup(func() { shellLookup = restore })

		res := Resolve("foreman-definitely-missing")
		if res.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", res.Kind, KindNotFound)
		}
		if _, err := command(res, nil); !errors.Is(err, ErrCommandNotFound) {
			t.Errorf("command() err = %v, want ErrCommandNotFound", err)
		}
	})

	t.Run("non-executable file falls back to shell", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "plainfile"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("PATH", dir)

		restore := shellLookup
		shellLookup = func(name string) (string, error) { return name + " is aliased to `echo hi'\n", nil }
		t.Cleanup(func() { shellLookup = restore })

		if res := Resolve("plainfile"); res.Kind != KindAlias {
			t.Errorf("Kind = %v, want %v", res.Kind, KindAlias)
		}
	})
}

func TestClassify(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		name string
		out  string
		want Kind
	}{
		{"bash alias", "cl is aliased to `claude --foo'", KindAlias},
		{"zsh alias", "cl is an alias for claude --foo", KindAlias},
		{"bash function", "cl is a function\ncl () \n{\n}", KindFunction},
		{"zsh function", "cl is a shell function from /home/u/.zshrc", KindFunction},
		{"builtin", "cl is a shell builtin", KindBuiltin},
		{"profile noise first", "welcome back!\ncl is a shell function", KindFunction},
		{"unrelated output", "bash: type: cl: not found", KindNotFound},
		{"missing path", "cl is /nonexistent/bin/cl", KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("cl", tt.out).Kind; got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("path answer resolves directly", func(t *testing.T) {
		path := writeScript(t, t.TempDir(), "cl", "exit 0")
		res := classify("cl", "cl is "+path)
		if res.Kind != KindDirect || res.Path != path {
			t.Errorf("classify() = %+v, want direct %s", res, path)
		}
		res = classify("cl", "cl is hashed ("+path+")")
		if res.Kind != KindDirect || res.Path != path {
			t.Errorf("classify(hashed) = %+v, want direct %s", res, path)
		}
	})
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"simple", "simple"},
		{"path/to-file_v1.md", "path/to-file_v1.md"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
		{"line\nbreak", "'line\nbreak'"},
	}

	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinCommandRoundTripsThroughShell(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	script := writeScript(t, dir, "args", `for a in "$@"; do printf '[%s]\n' "$a"; done`)
	args := []string{"plain", "with space", "quote ' inside", `back\slash`, "$(whoami)", ""}

	out, err := exec.Command("/bin/sh", "-c", JoinCommand(script, args)).Output()
	if err != nil {
		t.Fatalf("shell failed: %v", err)
	}

	want := "[plain]\n[with space]\n[quote ' inside]\n[back\\slash]\n[$(whoami)]\n[]\n"
	if string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}
