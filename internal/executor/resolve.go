package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrCommandNotFound is returned when a tool cannot be located either on
// PATH or through the user's shell.
var ErrCommandNotFound = errors.New("command not found")

// Kind classifies how a command name resolved.
type Kind int

const (
	KindNotFound Kind = iota
	KindDirect
	KindAlias
	KindFunction
	KindBuiltin
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "executable"
	case KindAlias:
		return "shell alias"
	case KindFunction:
		return "shell function"
	case KindBuiltin:
		return "shell builtin"
	default:
		return "not found"
	}
}

// Resolution is the result of resolving a command name. Path is set only for
// KindDirect.
type Resolution struct {
	Name string
	Kind Kind
	Path string
}

// ViaShell reports whether the command must be launched through the user's shell.
func (r Resolution) ViaShell() bool {
	return r.Kind == KindAlias || r.Kind == KindFunction || r.Kind == KindBuiltin
}

const shellLookupTimeout = 10 * time.Second

// Seams for tests.
var (
	lookPath    = exec.LookPath
	shellLookup = lookupViaShell
)

// Resolve determines how name can be launched: directly from PATH, or through
// the user's login shell when it is only defined in a shell profile.
func Resolve(name string) Resolution {
	if path, err := lookPath(name); err == nil && isExecutable(path) {
		return Resolution{Name: name, Kind: KindDirect, Path: path}
	}
	if runtime.GOOS == "windows" {
		return Resolution{Name: name, Kind: KindNotFound}
	}
	out, err := shellLookup(name)
	if err != nil {
		return Resolution{Name: name, Kind: KindNotFound}
	}
	return classify(name, out)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// userShell returns the user's login shell, falling back to /bin/sh.
func userShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// lookupViaShell asks a login, interactive shell to describe name with `type`.
func lookupViaShell(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), shellLookupTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, userShell(), "-l", "-i", "-c", "type "+Quote(name))
	cmd.Stdin = nil
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("shell lookup of %s: %w", name, err)
	}
	return string(out), nil
}

// classify interprets the output of the shell's `type` builtin. Profiles may
// print noise before it, so only lines that start with the name are considered.
func classify(name, out string) Resolution {
	lines := strings.Split(out, "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, name+" ") {
			continue
		}
		desc := strings.TrimPrefix(line, name+" ")

		// "name is /path" or bash's "name is hashed (/path)": found on the
		// shell's own PATH, which may differ from ours.
		if path := pathFromType(desc); path != "" {
			if isExecutable(path) {
				return Resolution{Name: name, Kind: KindDirect, Path: path}
			}
			continue
		}

		desc = strings.ToLower(desc)
		switch {
		case strings.Contains(desc, "alias"):
			return Resolution{Name: name, Kind: KindAlias}
		case strings.Contains(desc, "function"):
			return Resolution{Name: name, Kind: KindFunction}
		case strings.Contains(desc, "builtin"), strings.Contains(desc, "reserved word"):
			return Resolution{Name: name, Kind: KindBuiltin}
		}
	}
	return Resolution{Name: name, Kind: KindNotFound}
}

func pathFromType(desc string) string {
	rest, ok := strings.CutPrefix(desc, "is ")
	if !ok {
		return ""
	}
	if inner, ok := strings.CutPrefix(rest, "hashed ("); ok {
		rest = strings.TrimSuffix(inner, ")")
	}
	if !strings.HasPrefix(rest, "/") {
		return ""
	}
	return rest
}

// command builds the process for a resolved name.
func command(res Resolution, args []string) (*exec.Cmd, error) {
	switch {
	case res.Kind == KindDirect:
		return exec.Command(res.Path, args...), nil
	case res.ViaShell():
		return exec.Command(userShell(), "-l", "-i", "-c", JoinCommand(res.Name, args)), nil
	default:
		return nil, fmt.Errorf("%w: %q; verify it is installed and on your PATH, or defined in your shell profile",
			ErrCommandNotFound, res.Name)
	}
}
