package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rickgao/cellgrid/internal/config"
)

const (
	issuer          = "cellgrid"
	stateCookieName = "cellgrid_oauth_state"
	stateTTL        = 10 * time.Minute
)

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
	ErrStateMismatch  = errors.New("oauth state mismatch")
)

// Identity is the authenticated user behind a request.
type Identity struct {
	UserID   string
	Username string
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Manager issues and verifies session cookies.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool

	// Now is overridable for tests.
	Now func() time.Time
}

// NewManager creates a manager from the session config section.
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		Now:        time.Now,
	}
}

// Issue signs a session token for id.
func (m *Manager) Issue(id Identity) (string, time.Time, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty user id", ErrInvalidSession)
	}

	now := m.Now().UTC()
	exp := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Username: id.Username,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a session token.
func (m *Manager) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrNoSession
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.Now),
	)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}
	if parsed.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	return Identity{UserID: parsed.Subject, Username: parsed.Username}, nil
}

// SetCookie issues a session for id and writes it to w.
func (m *Manager) SetCookie(w http.ResponseWriter, id Identity) error {
	token, exp, err := m.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie removes the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the identity in r's session cookie.
func (m *Manager) FromRequest(r *http.Request) (Identity, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return Identity{}, ErrNoSession
	}
	return m.Parse(c.Value)
}

// NewState generates an OAuth state value and stores it in a short-lived cookie.
func (m *Manager) NewState(w http.ResponseWriter) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

// CheckState compares the callback's state with the cookie set by NewState
// and clears the cookie.
func (m *Manager) CheckState(w http.ResponseWriter, r *http.Request, state string) error {
	c, err := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	if err != nil || state == "" || c.Value != state {
		return ErrStateMismatch
	}
	return nil
}

// mapJWTError translates jwt library errors to session errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredSession
	}
	return fmt.Errorf("%w: %w", ErrInvalidSession, err)
}
