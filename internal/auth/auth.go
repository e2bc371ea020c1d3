// Package auth implements the Auth Gate: bearer credential validation
// against either a static API key or a signed JWT naming an active
// user.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a successful Authenticate call yields.
type Identity struct {
	ID       int64
	Username string
	IsAdmin  bool
}

// adminIdentity is the synthetic identity bound to the static API key.
var adminIdentity = Identity{ID: 0, Username: "api_key", IsAdmin: true}

// Kind distinguishes the auth error taxonomy's HTTP surfaces.
type Kind int

const (
	Unauthenticated Kind = iota
	InactiveUser
	Forbidden
)

// Error carries enough detail for the HTTP surface to render the
// right status code and body.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// UserLookup resolves a JWT subject claim to an active-user check. The
// conversation/user store implements this; auth only depends on the
// narrow interface so it never needs to know about storage.
type UserLookup interface {
	IsActiveUser(subject string) (active bool, exists bool)
}

// Claims is the JWT payload the gateway issues and verifies.
type Claims struct {
	jwt.RegisteredClaims
}

// Gate is the Auth Gate component.
type Gate struct {
	apiKey    string
	secret    []byte
	algorithm string
	users     UserLookup
}

func NewGate(apiKey, secret, algorithm string, users UserLookup) *Gate {
	return &Gate{apiKey: apiKey, secret: []byte(secret), algorithm: algorithm, users: users}
}

// Authenticate tries the static key first, then falls back to JWT
// verification, matching spec's ordered acceptance modes.
func (g *Gate) Authenticate(bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, newError(Unauthenticated, "missing bearer credential")
	}

	if g.apiKey != "" && subtle.ConstantTimeCompare([]byte(bearer), []byte(g.apiKey)) == 1 {
		return adminIdentity, nil
	}

	claims, err := g.verifyJWT(bearer)
	if err != nil {
		return Identity{}, newError(Unauthenticated, "invalid or expired token")
	}

	subject := claims.Subject
	if g.users != nil {
		active, exists := g.users.IsActiveUser(subject)
		if !exists {
			return Identity{}, newError(Unauthenticated, "invalid or expired token")
		}
		if !active {
			return Identity{}, newError(InactiveUser, "Inactive user")
		}
	}

	return Identity{ID: subjectToID(subject), Username: subject, IsAdmin: false}, nil
}

// RequireAdmin enforces spec's admin-only endpoint rule.
func RequireAdmin(id Identity) error {
	if !id.IsAdmin {
		return newError(Forbidden, "admin privileges required")
	}
	return nil
}

func (g *Gate) verifyJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		if g.algorithm != "" && t.Method.Alg() != g.algorithm {
			return nil, fmt.Errorf("unexpected algorithm: %v", t.Method.Alg())
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}
	return claims, nil
}

// IssueToken signs a token for subject (a user id as a string) with
// the gate's configured secret, used by any login/admin flow that
// mints gateway-native tokens.
func (g *Gate) IssueToken(subject string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

func subjectToID(subject string) int64 {
	var id int64
	if _, err := fmt.Sscanf(subject, "%d", &id); err != nil {
		return 0
	}
	return id
}
