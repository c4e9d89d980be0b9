// Package cli is the terminal front end for the sign-in flow.
package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// RootOption customises the root command.
type RootOption func(*rootOptions)

type rootOptions struct {
	prompter Prompter
}

// WithPrompter replaces the interactive terminal prompter.
func WithPrompter(p Prompter) RootOption {
	return func(o *rootOptions) {
		o.prompter = p
	}
}

// NewRootCommand builds the consolectl command tree.
func NewRootCommand(opts ...RootOption) *cobra.Command {
	o := rootOptions{prompter: NewTerminalPrompter()}
	for _, opt := range opts {
		opt(&o)
	}

	root := &cobra.Command{
		Use:           "consolectl",
		Short:         "Operator tooling for the CRM console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLoginCommand(o.prompter))
	return root
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
