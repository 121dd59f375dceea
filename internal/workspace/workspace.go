package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/mpataki/foreman/internal/ledger"
)

// Layout names the parts of a root directory, relative to the root.
type Layout struct {
	Root    string
	Pending string
	Done    string
	Ledger  string
	Hooks   string

	// TaskPatterns are glob patterns for task file names. Empty means
	// DefaultTaskPatterns.
	TaskPatterns []string
}

// DefaultLayout mirrors the config defaults.
func DefaultLayout() Layout {
	return Layout{
		Root:    ".foreman",
		Pending: "pending",
		Done:    "done",
		Ledger:  "tasks.md",
		Hooks:   "hooks.lua",

		TaskPatterns: append([]string(nil), DefaultTaskPatterns...),
	}
}

// Workspace resolves a Layout against a project directory.
type Workspace struct {
	ProjectDir string
	Root       string
	PendingDir string
	DoneDir    string
	LedgerPath string
	HooksPath  string

	patterns []glob.Glob
	now      func() time.Time
}

// DefaultTaskPatterns match markdown task files.
var DefaultTaskPatterns = []string{"*.md", "*.markdown"}

// CompilePatterns compiles task file patterns. Matching ignores case, so
// patterns are lowered here and names are lowered in IsTaskFile.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		patterns = DefaultTaskPatterns
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(strings.TrimSpace(p)))
		if err != nil {
			return nil, fmt.Errorf("invalid task pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Open resolves the layout without touching the filesystem.
func Open(projectDir string, layout Layout) (*Workspace, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	patterns, err := CompilePatterns(layout.TaskPatterns)
	if err != nil {
		return nil, err
	}
	root := resolve(abs, layout.Root)
	w := &Workspace{
		ProjectDir: abs,
		Root:       root,
		PendingDir: resolve(root, layout.Pending),
		DoneDir:    resolve(root, layout.Done),
		LedgerPath: resolve(root, layout.Ledger),
		patterns:   patterns,
		now:        time.Now,
	}
	if layout.Hooks != "" {
		w.HooksPath = resolve(root, layout.Hooks)
	}
	return w, nil
}

// Create opens the workspace and makes sure its directories exist. An example
// hooks script is written when none is present.
func Create(projectDir string, layout Layout) (*Workspace, error) {
	w, err := Open(projectDir, layout)
	if err != nil {
		return nil, err
	}
	if err := w.Ensure(); err != nil {
		return nil, err
	}
	if err := w.writeHooksExample(); err != nil {
		return nil, err
	}
	return w, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Ensure creates the pending and done directories.
func (w *Workspace) Ensure() error {
	for _, dir := range []string{w.Root, w.PendingDir, w.DoneDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Ledger returns the on-disk ledger.
func (w *Workspace) Ledger() ledger.File {
	return ledger.File{Path: w.LedgerPath}
}

// Rel returns path relative to the project directory for display.
func (w *Workspace) Rel(path string) string {
	if rel, err := filepath.Rel(w.ProjectDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// ScanPending lists task files waiting in the pending directory, oldest first.
func (w *Workspace) ScanPending() ([]string, error) {
	return w.scan(w.PendingDir)
}

// ListDone lists archived task files, oldest first.
func (w *Workspace) ListDone() ([]string, error) {
	return w.scan(w.DoneDir)
}

// IsTaskFile reports whether name matches one of the task patterns.
func (w *Workspace) IsTaskFile(name string) bool {
	name = strings.ToLower(name)
	for _, g := range w.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

type entry struct {
	path    string
	modTime time.Time
}

// scan returns regular task files in dir ordered by modification time, then
// name. A missing directory is empty.
func (w *Workspace) scan(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var entries []entry
	for _, de := range dirEntries {
		if !w.IsTaskFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, entry{path: filepath.Join(dir, de.Name()), modTime: info.ModTime()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].modTime.Before(entries[j].modTime)
		}
		return entries[i].path < entries[j].path
	})

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.path
	}
	return paths, nil
}

// Archive moves a task file into the done directory and returns its new
// path. An existing file is never overwritten: the name gets a timestamp
// suffix, then a counter if that is taken too.
func (w *Workspace) Archive(path string) (string, error) {
	if err := os.MkdirAll(w.DoneDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create done directory: %w", err)
	}
	dest, err := w.archiveName(filepath.Base(path))
	if err != nil {
		return "", err
	}
	if err := move(path, dest); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", filepath.Base(path), err)
	}
	return dest, nil
}

func (w *Workspace) archiveName(name string) (string, error) {
	dest := filepath.Join(w.DoneDir, name)
	if !exists(dest) {
		return dest, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamped := fmt.Sprintf("%s-%s", stem, w.now().Format("20060102-150405"))
	dest = filepath.Join(w.DoneDir, stamped+ext)
	for i := 1; exists(dest); i++ {
		if i > 1000 {
			return "", fmt.Errorf("no free archive name for %s", name)
		}
		dest = filepath.Join(w.DoneDir, fmt.Sprintf("%s-%d%s", stamped, i, ext))
	}
	return dest, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// move renames src to dst, copying when a rename is not possible (for
// example across filesystems).
func move(src, dst string) error {
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return errors.Join(renameErr, err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func (w *Workspace) writeHooksExample() error {
	if w.HooksPath == "" || exists(w.HooksPath) {
		return nil
	}
	if err := os.WriteFile(w.HooksPath, []byte(hooksExample), 0644); err != nil {
		return fmt.Errorf("failed to write hooks example: %w", err)
	}
	return nil
}

const hooksExample = `-- foreman hooks. Every function is optional; delete the ones you do not need.
-- Only the base, table, string and math libraries are available.

-- Returned text is appended to the execution prompt of the named task file.
-- function task_instructions(name)
--   if string.find(name, "test") then
--     return "Run the full test suite before finishing."
--   end
--   return ""
-- end

-- Called after every cycle. Return false to stop the loop.
-- function after_cycle(iteration, pending_count)
--   log("cycle " .. iteration .. " left " .. pending_count .. " pending")
--   return iteration < 20
-- end
`
