package cli

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Prompter asks the operator for a single value.
type Prompter interface {
	Input(title string, secret bool) (string, error)
}

type huhPrompter struct{}

// NewTerminalPrompter returns a Prompter backed by interactive huh forms.
func NewTerminalPrompter() Prompter {
	return huhPrompter{}
}

func (huhPrompter) Input(title string, secret bool) (string, error) {
	var value string

	input := huh.NewInput().
		Title(title).
		Value(&value)
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return value, nil
}
