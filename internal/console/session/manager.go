package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// ErrExpired is returned by Load when the cookie outlived its idle or absolute limit.
var ErrExpired = errors.New("session expired")

// ErrInvalidConfig is returned by NewManager for unusable key material.
var ErrInvalidConfig = errors.New("session: invalid config")

// Config controls the session cookie.
type Config struct {
	CookieName   string
	HashKey      []byte
	BlockKey     []byte
	CookiePath   string
	CookieDomain string
	CookieSecure bool

	// IdleTimeout ends a session that has not been seen for this long.
	IdleTimeout time.Duration
	// Lifetime bounds a session regardless of activity.
	Lifetime time.Duration
	Now      func() time.Time
}

// Manager encodes sessions into signed, optionally encrypted, cookies.
type Manager struct {
	cfg   Config
	codec securecookie.Codec
	now   func() time.Time
}

// NewManager validates the key material and applies defaults.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if n := len(cfg.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes, got %d", ErrInvalidConfig, n)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "console_session"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 12 * time.Hour
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	sc := securecookie.New(cfg.HashKey, cfg.BlockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(cfg.Lifetime / time.Second))

	return &Manager{cfg: cfg, codec: sc, now: cfg.Now}, nil
}

// Fresh returns an empty, signed-out session.
func (m *Manager) Fresh() *Session {
	now := m.now().UTC()
	return &Session{p: payload{
		ID:       uuid.NewString(),
		Issued:   now,
		Seen:     now,
		Deadline: now.Add(m.cfg.Lifetime),
	}}
}

// Load decodes the request cookie. A missing or forged cookie yields a fresh session;
// an expired one yields ErrExpired so the caller can clear it.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return m.Fresh(), nil
	}

	var p payload
	if err := m.codec.Decode(m.cfg.CookieName, c.Value, &p); err != nil || p.ID == "" {
		return m.Fresh(), nil
	}
	if p.expired(m.now().UTC(), m.cfg.IdleTimeout) {
		return nil, ErrExpired
	}
	return &Session{p: p}, nil
}

// Save marks the session as seen now and writes it back as a cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	now := m.now().UTC()
	if now.After(sess.p.Seen) {
		sess.p.Seen = now
	}

	value, err := m.codec.Encode(m.cfg.CookieName, sess.p)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	c := m.cookie(value)
	c.Expires = sess.p.Deadline
	c.MaxAge = int(sess.p.Deadline.Sub(now).Round(time.Second) / time.Second)
	if c.MaxAge <= 0 {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
	return nil
}

// Expire clears the session cookie on the client.
func (m *Manager) Expire(w http.ResponseWriter) {
	c := m.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
