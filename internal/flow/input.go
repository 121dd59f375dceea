package flow

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Input is the plan the flow works from: either a file or literal text.
type Input struct {
	Path string
	Text string
}

// FileInput reads the plan from path.
func FileInput(path string) Input { return Input{Path: path} }

// TextInput uses text as the plan.
func TextInput(text string) Input { return Input{Text: text} }

// Describe names the input for messages.
func (in Input) Describe() string {
	if in.Path != "" {
		return in.Path
	}
	return "inline text"
}

// Read returns the plan text. Empty plans are rejected.
func (in Input) Read() (string, error) {
	text := in.Text
	if in.Path != "" {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read input file: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("input is empty")
	}
	return text, nil
}
