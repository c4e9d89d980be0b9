// Package authclient issues the two sign-in calls against the CRM identity API.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finitefield.org/crm-console/internal/console/session"
)

const (
	loginEndpoint  = "/api/auth/login"
	verifyEndpoint = "/api/auth/verify-mfa"

	// OpLogin and OpVerify identify which call produced a RejectedError.
	OpLogin  = "login"
	OpVerify = "verify-mfa"
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// RejectedError is the single failure shape of the client. Network failures,
// non-2xx responses and malformed bodies all end up here.
type RejectedError struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	var b strings.Builder
	b.WriteString("authclient: ")
	b.WriteString(e.Op)
	b.WriteString(" rejected")
	if e.Status != 0 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// ErrMalformedResponse marks a 2xx response whose body could not be used.
var ErrMalformedResponse = errors.New("authclient: malformed response")

// Client talks to the identity API. It is stateless and safe for concurrent use.
type Client struct {
	base   *url.URL
	client HTTPClient
}

// New constructs a Client for baseURL. A nil client falls back to http.DefaultClient.
func New(baseURL string, client HTTPClient) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("authclient: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("authclient: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("authclient: base URL %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{base: parsed, client: client}, nil
}

// SubmitCredentials asks the API to check email/password and dispatch a one-time code.
// A nil error means the credentials were accepted; no session is granted yet.
func (c *Client) SubmitCredentials(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.post(ctx, OpLogin, loginEndpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !successful(resp.StatusCode) {
		return rejectionFromResponse(OpLogin, resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return nil
}

// VerifyCode exchanges the one-time code for the authenticated user.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (*session.User, error) {
	body := map[string]string{"email": email, "code": code}
	resp, err := c.post(ctx, OpVerify, verifyEndpoint, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !successful(resp.StatusCode) {
		return nil, rejectionFromResponse(OpVerify, resp)
	}

	var payload struct {
		User map[string]any `json:"user"`
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, &RejectedError{Op: OpVerify, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	user, err := userFromPayload(payload.User)
	if err != nil {
		return nil, &RejectedError{Op: OpVerify, Status: resp.StatusCode, Err: err}
	}
	return user, nil
}

func (c *Client) post(ctx context.Context, op, endpoint string, payload any) (*http.Response, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, &RejectedError{Op: op, Err: fmt.Errorf("encode payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(endpoint), &buf)
	if err != nil {
		return nil, &RejectedError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RejectedError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	return resp, nil
}

func (c *Client) resolve(endpoint string) string {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	return c.base.ResolveReference(ref).String()
}

func successful(status int) bool {
	return status >= 200 && status < 300
}

func rejectionFromResponse(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	reason := ""
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err == nil {
			reason = strings.TrimSpace(payload.Error)
			if reason == "" {
				reason = strings.TrimSpace(payload.Message)
			}
		}
	}
	return &RejectedError{Op: op, Status: resp.StatusCode, Reason: reason}
}

// userFromPayload maps the loose user object onto session.User. Known keys fill
// the typed fields and everything else lands in Profile.
func userFromPayload(raw map[string]any) (*session.User, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: missing user", ErrMalformedResponse)
	}
	user := &session.User{}
	for k, v := range raw {
		switch k {
		case "id":
			user.ID = scalarString(v)
		case "email":
			user.Email = scalarString(v)
		case "role":
			user.Role = scalarString(v)
		case "name":
			user.Name = scalarString(v)
		default:
			if user.Profile == nil {
				user.Profile = map[string]any{}
			}
			user.Profile[k] = v
		}
	}
	if user.ID == "" && user.Email == "" {
		return nil, fmt.Errorf("%w: user has neither id nor email", ErrMalformedResponse)
	}
	return user, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
