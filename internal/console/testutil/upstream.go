package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Upstream fakes the CRM identity API. It accepts one email/password pair and one code.
type Upstream struct {
	*httptest.Server

	Email    string
	Password string
	Code     string
	User     map[string]any

	mu           sync.Mutex
	loginCalls   int
	verifyCalls  int
	LoginStatus  int
	LoginError   string
	VerifyStatus int
}

// NewUpstream starts a fake identity API accepting a@b.com/secret1 and code 123456
// for an admin user.
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()

	u := &Upstream{
		Email:    "a@b.com",
		Password: "secret1",
		Code:     "123456",
		User:     map[string]any{"id": 1, "email": "a@b.com", "role": "admin", "name": "Ana"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", u.login)
	mux.HandleFunc("/api/auth/verify-mfa", u.verify)
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

// SetRole changes the role returned after verification.
func (u *Upstream) SetRole(role string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.User["role"] = role
}

// SetUserField adds or replaces a key in the user object returned after verification.
func (u *Upstream) SetUserField(key string, value any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.User[key] = value
}

// Calls returns how many login and verify requests were served.
func (u *Upstream) Calls() (login, verify int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loginCalls, u.verifyCalls
}

func (u *Upstream) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	u.mu.Lock()
	u.loginCalls++
	status, reason := u.LoginStatus, u.LoginError
	u.mu.Unlock()

	if status == 0 && (body.Email != u.Email || body.Password != u.Password) {
		status, reason = http.StatusUnauthorized, "Credenciais inválidas"
	}
	if status != 0 && status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": reason})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (u *Upstream) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	u.mu.Lock()
	u.verifyCalls++
	status := u.VerifyStatus
	user := make(map[string]any, len(u.User))
	for k, v := range u.User {
		user[k] = v
	}
	u.mu.Unlock()

	if status == 0 && (body.Email != u.Email || body.Code != u.Code) {
		status = http.StatusBadRequest
	}
	if status != 0 && status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "invalid code"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
