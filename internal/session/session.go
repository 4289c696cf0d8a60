package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "pkigate"

var (
	// ErrNoSession means the request carries no session cookie.
	ErrNoSession = errors.New("session: no cookie present")
	// ErrInvalid means the cookie failed signature or claim validation.
	ErrInvalid = errors.New("session: invalid cookie")
)

// Claims binds the login and the reconciled session token into one signed
// cookie value.
type Claims struct {
	Token string `json:"token"`
	jwt.RegisteredClaims
}

// Manager issues and reads the signed session cookie.
type Manager struct {
	secret []byte
	name   string
	path   string
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewManager constructs a Manager. secret signs the cookie with HS256.
func NewManager(secret []byte, name, path string, secure bool, ttl time.Duration) *Manager {
	return &Manager{
		secret: secret,
		name:   name,
		path:   path,
		secure: secure,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a cookie carrying login and session token.
func (m *Manager) Issue(login, token string) (*http.Cookie, error) {
	login = strings.TrimSpace(login)
	if login == "" || token == "" {
		return nil, errors.New("session: login and token are required")
	}
	now := m.now().UTC()
	claims := Claims{
		Token: token,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     m.name,
		Value:    signed,
		Path:     m.path,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Read extracts and validates the session cookie, returning the bound login
// and session token.
func (m *Manager) Read(r *http.Request) (login, token string, err error) {
	c, err := r.Cookie(m.name)
	if err != nil {
		return "", "", ErrNoSession
	}
	parsed, err := jwt.ParseWithClaims(c.Value, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return "", "", ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", "", ErrInvalid
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" || claims.Token == "" {
		return "", "", ErrInvalid
	}
	return claims.Subject, claims.Token, nil
}
