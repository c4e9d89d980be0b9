package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"finitefield.org/crm-console/internal/console/authclient"
	"finitefield.org/crm-console/internal/console/flow"
	"finitefield.org/crm-console/internal/console/guard"
	"finitefield.org/crm-console/internal/console/i18n"
	"finitefield.org/crm-console/internal/console/observability"
	"finitefield.org/crm-console/internal/console/rbac"
	"finitefield.org/crm-console/internal/console/session"
	"finitefield.org/crm-console/internal/console/validation"
)

const defaultMaxAttempts = 3

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

// ErrTooManyAttempts is returned when a step keeps failing.
var ErrTooManyAttempts = errors.New("too many failed attempts")

type loginOptions struct {
	apiURL      string
	email       string
	password    string
	code        string
	lang        string
	debug       bool
	maxAttempts int
}

func newLoginCommand(prompter Prompter) *cobra.Command {
	opts := loginOptions{maxAttempts: defaultMaxAttempts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in against the CRM identity API",
		Long: `Run the two-step sign-in against the CRM identity API and print the resulting identity.

Values not given as flags are prompted for. A rejected step is prompted again.

Examples:
  consolectl login --api-url https://crm.example.com
  consolectl login --api-url https://crm.example.com --email ana@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewConsoleLogger(cmd.ErrOrStderr(), opts.debug)
			defer func() { _ = logger.Sync() }()
			ctx := observability.WithLogger(cmd.Context(), logger)

			client, err := authclient.New(opts.apiURL, nil)
			if err != nil {
				return err
			}
			return runLogin(ctx, cmd.OutOrStdout(), prompter, client, opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiURL, "api-url", envOr("CONSOLE_API_BASE_URL", ""), "Base URL of the identity API")
	cmd.Flags().StringVar(&opts.email, "email", "", "Account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "Account password (prompted when empty)")
	cmd.Flags().StringVar(&opts.code, "code", "", "One-time code (prompted when empty)")
	cmd.Flags().StringVar(&opts.lang, "lang", i18n.DefaultLanguage, "Message language")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", defaultMaxAttempts, "Attempts allowed per step")
	return cmd
}

func runLogin(ctx context.Context, out io.Writer, prompter Prompter, auth flow.Authenticator, opts loginOptions) error {
	loc := i18n.Default().Localizer(opts.lang)
	controller := flow.NewController(auth)
	store := session.NewMemoryStore()
	maxAttempts := opts.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	state := flow.Start()
	email, password, code := opts.email, opts.password, opts.code
	failures := 0

	for {
		var res flow.Result
		switch st := state.(type) {
		case flow.EnteringCredentials:
			var err error
			if email, err = valueOrPrompt(prompter, email, loc.T("login.email_label"), false); err != nil {
				return err
			}
			if password, err = valueOrPrompt(prompter, password, loc.T("login.password_label"), true); err != nil {
				return err
			}
			res = controller.SubmitCredentials(ctx, state, validation.CredentialsInput{Email: email, Password: password}, loc)
		case flow.AwaitingCode:
			var err error
			if code, err = valueOrPrompt(prompter, code, loc.T("verify.code_label"), false); err != nil {
				return err
			}
			res = controller.SubmitCode(ctx, store, state, validation.CodeInput{Code: code}, loc)
		case flow.Authenticated:
			return printIdentity(out, store, loc, st.User)
		}

		if res.Notice != "" {
			fmt.Fprintln(out, noticeStyle.Render(res.Notice))
		}
		failed := !res.Fields.Empty() || res.State.FlowError() != ""
		if failed {
			for _, field := range res.Fields.Fields() {
				fmt.Fprintln(out, errorStyle.Render(res.Fields.Get(field)))
			}
			if msg := res.State.FlowError(); msg != "" {
				fmt.Fprintln(out, errorStyle.Render(msg))
			}
			failures++
			if failures >= maxAttempts {
				return ErrTooManyAttempts
			}
		} else {
			failures = 0
		}

		// Rejected values are asked for again; the pending email survives a bad code.
		switch res.State.(type) {
		case flow.EnteringCredentials:
			if failed {
				if res.Fields.Get(validation.FieldEmail) != "" || res.State.FlowError() != "" {
					email = ""
				}
				password = ""
			}
		case flow.AwaitingCode:
			code = ""
		}
		state = res.State
	}
}

func valueOrPrompt(prompter Prompter, current, title string, secret bool) (string, error) {
	if current != "" {
		return current, nil
	}
	if prompter == nil {
		return "", fmt.Errorf("%s is required", title)
	}
	return prompter.Input(title, secret)
}

func printIdentity(out io.Writer, store session.Reader, loc i18n.Localizer, user *session.User) error {
	if user == nil {
		return errors.New("sign-in finished without a user")
	}
	role := guard.CurrentRole(store)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render(loc.T("view.signed_in_as")), user.Email)
	if user.Name != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Name:"), user.Name)
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render(loc.T("view.role")+":"), role)

	caps := rbac.CapabilitiesForRole(role)
	names := make([]string, 0, len(caps))
	for capability := range caps {
		names = append(names, string(capability))
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	return nil
}
