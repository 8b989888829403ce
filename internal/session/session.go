// Package session keeps the courier's credential and refreshes it on demand.
// Components receive it read-only through backend.TokenSource or a subscription.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/integrations/backend"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// refreshSkew refreshes slightly before the real expiry.
const refreshSkew = 30 * time.Second

type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Email        string
	UserID       string
}

func (c Credentials) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Add(refreshSkew).Before(c.ExpiresAt)
}

type TokenIssuer interface {
	ObtainToken(ctx context.Context, email, password string) (backend.TokenPair, error)
	RefreshToken(ctx context.Context, refresh string) (backend.TokenPair, error)
}

// Listener is told about every credential change; ok=false means the session ended.
type Listener func(c Credentials, ok bool)

type Manager struct {
	issuer TokenIssuer
	now    func() time.Time

	mu    sync.Mutex
	creds *Credentials

	subsMu  sync.Mutex
	subs    map[int]Listener
	nextSub int
}

func New(issuer TokenIssuer) *Manager {
	return &Manager{
		issuer: issuer,
		now:    time.Now,
		subs:   make(map[int]Listener),
	}
}

// Login obtains a fresh token pair for email/password.
func (m *Manager) Login(ctx context.Context, email, password string) (Credentials, error) {
	if email == "" || password == "" {
		return Credentials{}, errors.New("email and password are required")
	}
	tp, err := m.issuer.ObtainToken(ctx, email, password)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "obtain token")
	}
	c := Credentials{
		AccessToken:  tp.Access,
		RefreshToken: tp.Refresh,
		ExpiresAt:    tokenExpiry(tp.Access),
		Email:        tp.Email,
		UserID:       string(tp.UserID),
	}
	if c.Email == "" {
		c.Email = email
	}
	m.set(&c)
	slog.Info("courier signed in", "email", c.Email, "expires_at", c.ExpiresAt)
	return c, nil
}

// Adopt installs a token pair issued elsewhere.
func (m *Manager) Adopt(access, refresh string) (Credentials, error) {
	if access == "" {
		return Credentials{}, errors.Wrap(backend.ErrUnauthorized, "empty access token")
	}
	c := Credentials{AccessToken: access, RefreshToken: refresh, ExpiresAt: tokenExpiry(access)}
	c.Email, c.UserID = tokenSubject(access)
	m.set(&c)
	return c, nil
}

func (m *Manager) Current() (Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, false
	}
	return *m.creds, true
}

// AccessToken implements backend.TokenSource. An expired token is refreshed once;
// a failed refresh ends the session.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()
		return "", errors.Wrap(backend.ErrUnauthorized, "not signed in")
	}
	if !m.creds.expired(m.now()) {
		tok := m.creds.AccessToken
		m.mu.Unlock()
		return tok, nil
	}

	refresh := m.creds.RefreshToken
	old := *m.creds
	if refresh == "" {
		m.creds = nil
		m.mu.Unlock()
		m.notify(Credentials{}, false)
		return "", errors.Wrap(backend.ErrUnauthorized, "access token expired")
	}

	tp, err := m.issuer.RefreshToken(ctx, refresh)
	if err != nil {
		m.creds = nil
		m.mu.Unlock()
		slog.Warn("refresh access token", "error", err.Error())
		m.notify(Credentials{}, false)
		return "", errors.Wrap(backend.ErrUnauthorized, "refresh access token: "+err.Error())
	}

	c := old
	c.AccessToken = tp.Access
	if tp.Refresh != "" {
		c.RefreshToken = tp.Refresh
	}
	c.ExpiresAt = tokenExpiry(tp.Access)
	m.creds = &c
	m.mu.Unlock()

	m.notify(c, true)
	return c.AccessToken, nil
}

func (m *Manager) Logout() {
	m.mu.Lock()
	had := m.creds != nil
	m.creds = nil
	m.mu.Unlock()
	if had {
		m.notify(Credentials{}, false)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()
	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Manager) set(c *Credentials) {
	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()
	m.notify(*c, true)
}

func (m *Manager) notify(c Credentials, ok bool) {
	m.subsMu.Lock()
	subs := make([]Listener, 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()
	for _, fn := range subs {
		fn(c, ok)
	}
}

// tokenExpiry reads "exp" without verifying the signature; the backend verifies.
func tokenExpiry(access string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return time.Time{}
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0).UTC()
	case json.Number:
		if v, err := exp.Int64(); err == nil {
			return time.Unix(v, 0).UTC()
		}
	}
	return time.Time{}
}

func tokenSubject(access string) (email, userID string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return "", ""
	}
	if s, ok := claims["email"].(string); ok {
		email = s
	}
	switch v := claims["user_id"].(type) {
	case string:
		userID = v
	case float64:
		userID = strconv.FormatInt(int64(v), 10)
	}
	return email, userID
}
