package prompt

import (
	"os"
	"path/filepath"
)

// guidelineFiles are project instruction files agents are told to honour,
// in the order they are listed in prompts.
var guidelineFiles = []string{
	"AGENTS.md",
	"CLAUDE.md",
	"GEMINI.md",
	"CONTRIBUTING.md",
	".github/copilot-instructions.md",
	".cursorrules",
	"docs/CONTRIBUTING.md",
}

// DiscoverGuidelines returns the guideline files present in projectDir,
// relative to it with forward slashes.
func DiscoverGuidelines(projectDir string) []string {
	var found []string
	for _, name := range guidelineFiles {
		info, err := os.Stat(filepath.Join(projectDir, filepath.FromSlash(name)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		found = append(found, name)
	}
	return found
}
