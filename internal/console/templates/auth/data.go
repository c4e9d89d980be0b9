package auth

import (
	"github.com/a-h/templ"

	"finitefield.org/crm-console/internal/console/i18n"
	"finitefield.org/crm-console/internal/console/templates"
)

// Login steps.
const (
	StepCredentials = "credentials"
	StepCode        = "code"
)

// LoginPageData encapsulates rendering state for the two-step login screen.
type LoginPageData struct {
	Title  string
	Step   string
	Email  string
	Code   string
	Notice string
	Error  string
	Fields map[string]string

	Next       string
	LoginPath  string
	VerifyPath string
	CSRFToken  string
	L          i18n.Localizer
}

// FieldError returns the validation message for field, or "".
func (d LoginPageData) FieldError(field string) string {
	return d.Fields[field]
}

// LoginPage renders the login view.
func LoginPage(data LoginPageData) templ.Component {
	if data.Step == "" {
		data.Step = StepCredentials
	}
	return templates.Component("login", data)
}
