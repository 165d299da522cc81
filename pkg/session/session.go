// Package session exchanges the single admin credential for a short-lived
// HS256 token and verifies those tokens on later requests.
package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"folio/pkg/apierr"
)

const (
	Subject   = "admin"
	RoleAdmin = "admin"

	DefaultTTL  = 30 * time.Minute
	DefaultCost = 10
)

var (
	ErrNotConfigured      = errors.New("admin session not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid session token")
)

// Claims are the JWT claims of an admin session.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Token is an issued session.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Options configures a Gate. Hash takes precedence over Password.
type Options struct {
	Password string
	Hash     string
	Secret   string
	TTL      time.Duration
}

type Gate struct {
	opts Options
	now  func() time.Time
}

func NewGate(opts Options) *Gate {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Gate{opts: opts, now: time.Now}
}

// WithClock overrides the time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Configured reports whether logins can succeed at all.
func (g *Gate) Configured() bool {
	return g.opts.Secret != "" && (g.opts.Hash != "" || g.opts.Password != "")
}

// Login checks password and issues a token.
func (g *Gate) Login(password string) (Token, error) {
	if !g.Configured() {
		return Token{}, apierr.Configuration("admin login", ErrNotConfigured)
	}
	if password == "" || !g.matches(password) {
		return Token{}, apierr.Auth("Invalid password", ErrInvalidCredentials)
	}

	now := g.now()
	expires := now.Add(g.opts.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: RoleAdmin,
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.opts.Secret))
	if err != nil {
		return Token{}, fmt.Errorf("sign session: %w", err)
	}

	return Token{Value: value, ExpiresAt: expires.Truncate(time.Second)}, nil
}

func (g *Gate) matches(password string) bool {
	if g.opts.Hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(g.opts.Hash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(g.opts.Password)) == 1
}

// Verify parses and validates a token issued by Login.
func (g *Gate) Verify(tokenString string) (*Claims, error) {
	if g.opts.Secret == "" {
		return nil, apierr.Configuration("admin session", ErrNotConfigured)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (interface{}, error) {
			return []byte(g.opts.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, apierr.Auth("Invalid or expired session", fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}
	if !token.Valid || claims.Role != RoleAdmin {
		return nil, apierr.Auth("Invalid or expired session", ErrInvalidToken)
	}

	return claims, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
