package httpserver

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/flow"
	"finitefield.org/crm-console/internal/console/guard"
	custommw "finitefield.org/crm-console/internal/console/httpserver/middleware"
	"finitefield.org/crm-console/internal/console/observability"
	appsession "finitefield.org/crm-console/internal/console/session"
	"finitefield.org/crm-console/internal/console/templates/auth"
	"finitefield.org/crm-console/internal/console/validation"
)

const msgFormInvalid = "login.form_invalid"

type authHandlers struct {
	flow       *flow.Controller
	basePath   string
	loginPath  string
	verifyPath string
}

func newAuthHandlers(controller *flow.Controller, basePath, loginPath string) *authHandlers {
	if controller == nil {
		panic("auth: flow controller is required")
	}
	if strings.TrimSpace(basePath) == "" {
		basePath = "/"
	}
	if strings.TrimSpace(loginPath) == "" {
		loginPath = resolveLoginPath(basePath, "")
	}
	return &authHandlers{
		flow:       controller,
		basePath:   basePath,
		loginPath:  loginPath,
		verifyPath: strings.TrimRight(loginPath, "/") + "/verify",
	}
}

// LoginForm mounts the login view. Entering it restarts the flow; a visitor who is
// already signed in goes straight to the target without any upstream call.
func (h *authHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if ok && guard.IsAuthenticated(sess) {
		http.Redirect(w, r, h.redirectTarget(r.URL.Query().Get("next")), http.StatusFound)
		return
	}
	if ok {
		sess.ClearPendingLogin()
	}

	data := h.pageData(r, flow.Start(), flow.Result{})
	data.Next = h.normalizeNext(r.URL.Query().Get("next"))
	h.render(w, r, data, http.StatusOK)
}

// LoginSubmit handles the credentials step.
func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	loc := custommw.LocalizerFromContext(r.Context())
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		data := h.pageData(r, flow.EnteringCredentials{Error: loc.T(msgFormInvalid)}, flow.Result{})
		h.render(w, r, data, http.StatusBadRequest)
		return
	}
	if guard.IsAuthenticated(sess) {
		custommw.Redirect(w, r, h.redirectTarget(r.PostFormValue("next")), http.StatusSeeOther)
		return
	}

	current := currentState(sess)
	input := validation.CredentialsInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	res := h.flow.SubmitCredentials(r.Context(), current, input, loc)

	data := h.pageData(r, res.State, res)
	data.Next = h.normalizeNext(r.PostFormValue("next"))

	status := http.StatusOK
	switch st := res.State.(type) {
	case flow.AwaitingCode:
		if _, wasAwaiting := current.(flow.AwaitingCode); !wasAwaiting {
			sess.SetPendingLogin(appsession.PendingLogin{Email: st.Pending.Email, AttemptID: st.Pending.AttemptID})
		}
	case flow.EnteringCredentials:
		data.Email = strings.TrimSpace(input.Email)
		if !res.Fields.Empty() {
			status = http.StatusBadRequest
		} else if st.Error != "" {
			status = http.StatusUnauthorized
		}
	}
	h.render(w, r, data, status)
}

// VerifySubmit handles the code step.
func (h *authHandlers) VerifySubmit(w http.ResponseWriter, r *http.Request) {
	loc := custommw.LocalizerFromContext(r.Context())
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	next := r.PostFormValue("next")
	if guard.IsAuthenticated(sess) {
		custommw.Redirect(w, r, h.redirectTarget(next), http.StatusSeeOther)
		return
	}

	current := currentState(sess)
	if _, awaiting := current.(flow.AwaitingCode); !awaiting {
		observability.FromContext(r.Context()).Info("code submitted without pending login")
		custommw.Redirect(w, r, h.loginPath, http.StatusSeeOther)
		return
	}

	res := h.flow.SubmitCode(r.Context(), sess, current, validation.CodeInput{Code: r.PostFormValue("code")}, loc)
	if _, done := res.State.(flow.Authenticated); done {
		sess.ClearPendingLogin()
		target := h.redirectTarget(next)
		observability.FromContext(r.Context()).Info("redirecting after sign-in", zap.String("target", target))
		custommw.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	data := h.pageData(r, res.State, res)
	data.Next = h.normalizeNext(next)
	data.Code = strings.TrimSpace(r.PostFormValue("code"))
	status := http.StatusOK
	if !res.Fields.Empty() {
		status = http.StatusBadRequest
	} else if res.State.FlowError() != "" {
		status = http.StatusUnauthorized
	}
	h.render(w, r, data, status)
}

func currentState(sess *appsession.Session) flow.State {
	pending := sess.PendingLogin()
	if pending == nil {
		return flow.Start()
	}
	return flow.Resume(&flow.PendingVerification{Email: pending.Email, AttemptID: pending.AttemptID})
}

func (h *authHandlers) pageData(r *http.Request, state flow.State, res flow.Result) auth.LoginPageData {
	loc := custommw.LocalizerFromContext(r.Context())
	data := auth.LoginPageData{
		Step:       auth.StepCredentials,
		Notice:     res.Notice,
		Error:      state.FlowError(),
		Fields:     res.Fields,
		LoginPath:  h.loginPath,
		VerifyPath: h.verifyPath,
		CSRFToken:  custommw.CSRFTokenFromContext(r.Context()),
		L:          loc,
	}
	if st, ok := state.(flow.AwaitingCode); ok {
		data.Step = auth.StepCode
		data.Email = st.Pending.Email
		data.Title = loc.T("verify.title")
	} else {
		data.Title = loc.T("login.title")
	}
	return data
}

// render writes the login view. htmx 1.x discards 4xx bodies, so htmx requests
// always get 200 and the error travels in the markup.
func (h *authHandlers) render(w http.ResponseWriter, r *http.Request, data auth.LoginPageData, status int) {
	component := auth.LoginPage(data)
	if custommw.IsHTMXRequest(r.Context()) {
		status = http.StatusOK
	}
	if status == http.StatusOK {
		templ.Handler(component).ServeHTTP(w, r)
		return
	}
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *authHandlers) redirectTarget(raw string) string {
	if next := h.normalizeNext(raw); next != "" {
		return next
	}
	return normalizeBase(h.basePath)
}

func (h *authHandlers) normalizeNext(raw string) string {
	sanitized := sanitizeNextTarget(h.basePath, raw)
	if sanitized == "" {
		return ""
	}
	if p := pathOnly(sanitized); samePath(p, h.loginPath) || samePath(p, h.verifyPath) {
		return ""
	}
	return sanitized
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	trim := func(p string) string {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		for len(p) > 1 && strings.HasSuffix(p, "/") {
			p = strings.TrimSuffix(p, "/")
		}
		return p
	}
	return trim(a) == trim(b)
}

// sanitizeNextTarget keeps same-origin paths under basePath and drops everything else.
func sanitizeNextTarget(basePath, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}

	pathValue := parsed.Path
	if pathValue == "" {
		pathValue = "/"
	}

	unescaped, err := url.PathUnescape(pathValue)
	if err != nil {
		return ""
	}
	if strings.Contains(unescaped, "\\") {
		return ""
	}

	cleaned := path.Clean(unescaped)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if strings.HasPrefix(cleaned, "//") {
		return ""
	}

	base := normalizeBase(basePath)
	if base != "/" && !hasSafePrefix(cleaned, base) {
		return ""
	}

	target := cleaned
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return target
}

func normalizeBase(base string) string {
	return custommw.NormaliseBase(base)
}

func hasSafePrefix(pathValue, base string) bool {
	if !strings.HasPrefix(pathValue, base) {
		return false
	}
	if len(pathValue) == len(base) {
		return true
	}
	return pathValue[len(base)] == '/'
}

func pathOnly(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Path
}
