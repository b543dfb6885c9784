package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// SessionCookie is the name of the signed login cookie.
const SessionCookie = "registry_session"

var ErrNoSession = errors.New("no login session")

// Claims is the payload of the login cookie. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Remember bool   `json:"remember,omitempty"`
}

// UserID parses the subject back into a user id.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Sessions issues and verifies HS256-signed login cookies. A remembered login
// gets a persistent cookie living MaxAge; any other login gets a browser
// session cookie whose token expires after TTL.
type Sessions struct {
	key    []byte
	ttl    time.Duration
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

func NewSessions(secret string, ttl, maxAge time.Duration, secure bool) *Sessions {
	return &Sessions{
		key:    []byte(secret),
		ttl:    ttl,
		maxAge: maxAge,
		secure: secure,
		now:    time.Now,
	}
}

// Login signs a session for the user and sets it on the response.
func (s *Sessions) Login(c echo.Context, userID int64, email string, remember bool) error {
	now := s.now()
	lifetime := s.ttl
	if remember {
		lifetime = s.maxAge
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		Email:    email,
		Remember: remember,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	cookie := s.cookie(token)
	if remember {
		cookie.Expires = now.Add(lifetime)
		cookie.MaxAge = int(lifetime.Seconds())
	}
	c.SetCookie(cookie)
	return nil
}

// Logout expires the session cookie.
func (s *Sessions) Logout(c echo.Context) {
	cookie := s.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	c.SetCookie(cookie)
}

// Read verifies the session cookie of r.
func (s *Sessions) Read(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("invalid session subject %q", claims.Subject)
	}
	return claims, nil
}

func (s *Sessions) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
