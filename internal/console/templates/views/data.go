package views

import (
	"github.com/a-h/templ"

	"finitefield.org/crm-console/internal/console/i18n"
	"finitefield.org/crm-console/internal/console/session"
	"finitefield.org/crm-console/internal/console/templates"
	"finitefield.org/crm-console/internal/console/templates/helpers"
)

// PageData is the shared shell for protected views.
type PageData struct {
	View        string
	Title       string
	User        *session.User
	Role        string
	Nav         []helpers.NavItem
	Environment string
	CSRFToken   string
	L           i18n.Localizer
}

// Page renders a protected view.
func Page(data PageData) templ.Component {
	return templates.Component("page", data)
}
