package httpserver_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"finitefield.org/crm-console/internal/console/testutil"
)

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	csrf   string
}

func newBrowser(t *testing.T, base string) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, *goquery.Document) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)

	var doc *goquery.Document
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		doc = testutil.ParseHTML(b.t, body)
		if token, ok := doc.Find(`input[name="csrf_token"]`).First().Attr("value"); ok && token != "" {
			b.csrf = token
		}
	}
	return resp, doc
}

func (b *browser) get(path string) (*http.Response, *goquery.Document) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) (*http.Response, *goquery.Document) {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrf)
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) postHTMX(path string, form url.Values) (*http.Response, *goquery.Document) {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrf)
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	return b.do(req)
}

func (b *browser) signIn(email, password, code string) *http.Response {
	b.t.Helper()
	b.get("/login")
	resp, _ := b.post("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	resp, _ = b.post("/login/verify", url.Values{"code": {code}})
	return resp
}

func (b *browser) signInWithNext(next string) *http.Response {
	b.t.Helper()
	b.get("/login")
	b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	resp, _ := b.post("/login/verify", url.Values{"code": {"123456"}, "next": {next}})
	return resp
}

func TestProtectedViewRedirectsAnonymousToLogin(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	for _, path := range []string{"/", "/contacts", "/settings"} {
		resp, _ := b.get(path)
		require.Equal(t, http.StatusFound, resp.StatusCode, path)
		require.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
	login, verify := upstream.Calls()
	require.Zero(t, login)
	require.Zero(t, verify)
}

func TestTwoStepSignInReachesAdminView(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	resp, doc := b.get("/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store, max-age=0", resp.Header.Get("Cache-Control"))
	require.Equal(t, "credentials", doc.Find("main").AttrOr("data-step", ""))
	require.Equal(t, "Entre na sua conta", testutil.Text(doc, "h1"))
	require.NotEmpty(t, b.csrf)
	script := doc.Find(`script[src*="htmx.org"]`)
	require.Equal(t, 1, script.Length())
	require.True(t, strings.HasPrefix(script.AttrOr("integrity", ""), "sha384-"))
	require.Equal(t, "anonymous", script.AttrOr("crossorigin", ""))

	resp, doc = b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "code", doc.Find("main").AttrOr("data-step", ""))
	require.Equal(t, "a@b.com", doc.Find(".pending-email").AttrOr("data-email", ""))
	require.Equal(t, "Código de verificação enviado para o seu e-mail!", testutil.Text(doc, ".flow-notice"))

	resp, _ = b.post("/login/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, doc = b.get("/settings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "settings", doc.Find("main").AttrOr("data-view", ""))
	require.Equal(t, "a@b.com", testutil.Text(doc, ".user-email"))
	require.Equal(t, "admin", testutil.Text(doc, ".user-role"))
	require.Equal(t, 1, doc.Find(`a[data-nav="settings"]`).Length())
	require.Equal(t, "settings.manage", doc.Find(`a[data-nav="settings"]`).AttrOr("data-capability", ""))

	// Re-entering the login view afterwards must not call upstream again.
	resp, _ = b.get("/login")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	login, verify := upstream.Calls()
	require.Equal(t, 1, login)
	require.Equal(t, 1, verify)
}

func TestLargeUserProfileStillSignsIn(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	upstream.SetUserField("permissions", strings.Repeat("contacts.read,", 300))
	upstream.SetUserField("bio", strings.Repeat("x", 4096))
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	resp := b.signIn("a@b.com", "secret1", "123456")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, doc := b.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "a@b.com", testutil.Text(doc, ".user-email"))
	require.Equal(t, "admin", testutil.Text(doc, ".user-role"))
	_, verify := upstream.Calls()
	require.Equal(t, 1, verify)
}

func TestInvalidEmailIssuesNoUpstreamCall(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	resp, doc := b.post("/login", url.Values{"email": {"not-an-email"}, "password": {"123"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "credentials", doc.Find("main").AttrOr("data-step", ""))
	require.Equal(t, "Email inválido", testutil.Text(doc, `.field-error[data-field="email"]`))
	require.Equal(t, "Senha deve ter no mínimo 6 caracteres", testutil.Text(doc, `.field-error[data-field="password"]`))
	require.Zero(t, doc.Find(".flow-error").Length())
	require.Equal(t, "not-an-email", doc.Find("#email").AttrOr("value", ""))

	login, _ := upstream.Calls()
	require.Zero(t, login)
}

func TestRejectedCredentialsStayOnFirstStep(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	resp, doc := b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"wrong-password"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "credentials", doc.Find("main").AttrOr("data-step", ""))
	require.Equal(t, "Credenciais inválidas", testutil.Text(doc, ".flow-error"))

	// No pending verification was created.
	resp, _ = b.post("/login/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))
	_, verify := upstream.Calls()
	require.Zero(t, verify)

	// A corrected submission succeeds on its own.
	resp, doc = b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "code", doc.Find("main").AttrOr("data-step", ""))
	require.Zero(t, doc.Find(".flow-error").Length())
}

func TestCodeStepErrorsKeepPendingEmail(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})

	resp, doc := b.post("/login/verify", url.Values{"code": {"12345"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Código deve ter 6 dígitos", testutil.Text(doc, `.field-error[data-field="code"]`))
	_, verify := upstream.Calls()
	require.Zero(t, verify)

	resp, doc = b.post("/login/verify", url.Values{"code": {"000000"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "code", doc.Find("main").AttrOr("data-step", ""))
	require.Equal(t, "a@b.com", doc.Find(".pending-email").AttrOr("data-email", ""))
	require.Equal(t, "Erro na verificação MFA. Verifique o código e tente novamente.", testutil.Text(doc, ".flow-error"))

	resp, _ = b.post("/login/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	login, verify := upstream.Calls()
	require.Equal(t, 1, login)
	require.Equal(t, 2, verify)
}

func TestNonAdminIsSentToRootFromSettings(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	upstream.SetRole("user")
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	resp := b.signIn("a@b.com", "secret1", "123456")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = b.get("/settings")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, doc := b.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "user", testutil.Text(doc, ".user-role"))
	require.Zero(t, doc.Find(`a[data-nav="settings"]`).Length())
	require.Equal(t, 1, doc.Find(`a[data-nav="contacts"]`).Length())
}

func TestLeavingLoginViewAbandonsPendingCode(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})

	_, doc := b.get("/login")
	require.Equal(t, "credentials", doc.Find("main").AttrOr("data-step", ""))

	resp, _ := b.post("/login/verify", url.Values{"code": {"123456"}})
	require.Equal(t, "/login", resp.Header.Get("Location"))
	_, verify := upstream.Calls()
	require.Zero(t, verify)
}

func TestNextParameterIsSanitised(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login?next=/contacts")
	b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}, "next": {"/contacts"}})
	resp, _ := b.post("/login/verify", url.Values{"code": {"123456"}, "next": {"/contacts"}})
	require.Equal(t, "/contacts", resp.Header.Get("Location"))

	b2 := newBrowser(t, ts.URL)
	resp = b2.signInWithNext("https://evil.example.com/")
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHTMXVerifyUsesHXRedirect(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	b.postHTMX("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})

	resp, _ := b.postHTMX("/login/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("HX-Redirect"))
}

func TestHTMXFormErrorsAreSwappable(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	resp, doc := b.postHTMX("/login", url.Values{"email": {"not-an-email"}, "password": {"secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Email inválido", testutil.Text(doc, `.field-error[data-field="email"]`))

	resp, doc = b.postHTMX("/login", url.Values{"email": {"a@b.com"}, "password": {"wrong-password"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "credentials", doc.Find("main").AttrOr("data-step", ""))
	require.Equal(t, "Credenciais inválidas", testutil.Text(doc, ".flow-error"))

	resp, doc = b.postHTMX("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "code", doc.Find("main").AttrOr("data-step", ""))

	resp, doc = b.postHTMX("/login/verify", url.Values{"code": {"12a456"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Código deve ter 6 dígitos", testutil.Text(doc, `.field-error[data-field="code"]`))

	resp, doc = b.postHTMX("/login/verify", url.Values{"code": {"000000"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "a@b.com", doc.Find(".pending-email").AttrOr("data-email", ""))
	require.Equal(t, "Erro na verificação MFA. Verifique o código e tente novamente.", testutil.Text(doc, ".flow-error"))
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	b.get("/login")
	b.csrf = ""
	resp, _ := b.post("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	login, _ := upstream.Calls()
	require.Zero(t, login)
}

func TestUnknownPathsRedirectToRootAndHealthz(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	resp, _ := b.get("/does-not-exist")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = b.get("/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = b.get("/public/static/app.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasePathRoutes(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL, testutil.WithBasePath("/crm"))
	b := newBrowser(t, ts.URL)

	resp, _ := b.get("/crm/settings")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/crm/login", resp.Header.Get("Location"))

	b.get("/crm/login")
	b.post("/crm/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	resp, _ = b.post("/crm/login/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/crm", resp.Header.Get("Location"))

	resp, _ = b.get("/crm/settings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEnglishLocale(t *testing.T) {
	t.Parallel()

	upstream := testutil.NewUpstream(t)
	ts := testutil.NewServer(t, upstream.URL)
	b := newBrowser(t, ts.URL)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/login", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,pt;q=0.5")
	resp, doc := b.do(req)
	require.Equal(t, "en", resp.Header.Get("Content-Language"))
	require.Equal(t, "Sign in to your account", testutil.Text(doc, "h1"))
}
