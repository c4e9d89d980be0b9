package ui

import (
	"net/http"

	"github.com/a-h/templ"

	"finitefield.org/crm-console/internal/console/guard"
	custommw "finitefield.org/crm-console/internal/console/httpserver/middleware"
	"finitefield.org/crm-console/internal/console/templates/helpers"
	"finitefield.org/crm-console/internal/console/templates/views"
)

// Handlers renders the protected console views. The views only read the
// current identity; their business data lives elsewhere.
type Handlers struct{}

// NewHandlers wires the UI handler set.
func NewHandlers() *Handlers {
	return &Handlers{}
}

// View returns a handler rendering the page registered under key.
func (h *Handlers) View(key, titleKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		loc := custommw.LocalizerFromContext(ctx)
		store := custommw.StoreFromContext(ctx)

		data := views.PageData{
			View:        key,
			Title:       loc.T(titleKey),
			Nav:         helpers.NavItems(ctx, loc.T),
			Environment: custommw.EnvironmentFromContext(ctx),
			CSRFToken:   custommw.CSRFTokenFromContext(ctx),
			L:           loc,
		}
		if store != nil {
			data.User = store.CurrentUser()
			data.Role = guard.CurrentRole(store)
		}
		templ.Handler(views.Page(data)).ServeHTTP(w, r)
	}
}

// Fallback sends unknown paths to the root view.
func (h *Handlers) Fallback(root string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		custommw.Redirect(w, r, root, http.StatusFound)
	}
}
