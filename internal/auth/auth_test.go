package auth

import (
	"testing"
	"time"
)

type fakeUsers struct {
	active map[string]bool
}

func (f fakeUsers) IsActiveUser(subject string) (bool, bool) {
	active, exists := f.active[subject]
	return active, exists
}

func TestAuthenticateWithStaticAPIKeyYieldsSyntheticAdmin(t *testing.T) {
	g := NewGate("supersecretkey", "jwtsecret", "HS256", nil)

	id, err := g.Authenticate("supersecretkey")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID != 0 || id.Username != "api_key" || !id.IsAdmin {
		t.Errorf("expected synthetic admin identity, got %+v", id)
	}
}

func TestAuthenticateRejectsUnknownBearer(t *testing.T) {
	g := NewGate("supersecretkey", "jwtsecret", "HS256", nil)

	_, err := g.Authenticate("garbage-value")
	authErr, ok := err.(*Error)
	if !ok || authErr.Kind != Unauthenticated {
		t.Fatalf("expected Unauthenticated error, got %v", err)
	}
}

func TestAuthenticateAcceptsValidJWTForActiveUser(t *testing.T) {
	users := fakeUsers{active: map[string]bool{"42": true}}
	g := NewGate("apikey", "jwtsecret", "HS256", users)

	token, err := g.IssueToken("42", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	id, err := g.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID != 42 || id.IsAdmin {
		t.Errorf("expected non-admin identity with id=42, got %+v", id)
	}
}

func TestAuthenticateRejectsExpiredJWT(t *testing.T) {
	users := fakeUsers{active: map[string]bool{"42": true}}
	g := NewGate("apikey", "jwtsecret", "HS256", users)

	token, _ := g.IssueToken("42", -time.Minute)
	_, err := g.Authenticate(token)
	if err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAuthenticateRejectsInactiveUser(t *testing.T) {
	users := fakeUsers{active: map[string]bool{"42": false}}
	g := NewGate("apikey", "jwtsecret", "HS256", users)

	token, _ := g.IssueToken("42", time.Minute)
	_, err := g.Authenticate(token)
	authErr, ok := err.(*Error)
	if !ok || authErr.Kind != InactiveUser {
		t.Fatalf("expected InactiveUser error, got %v", err)
	}
}

func TestAuthenticateRejectsTokenSignedWithWrongSecret(t *testing.T) {
	users := fakeUsers{active: map[string]bool{"42": true}}
	attacker := NewGate("apikey", "wrong-secret", "HS256", users)
	victim := NewGate("apikey", "jwtsecret", "HS256", users)

	token, _ := attacker.IssueToken("42", time.Minute)
	_, err := victim.Authenticate(token)
	if err == nil {
		t.Fatal("expected a token signed with a different secret to be rejected")
	}
}

func TestRequireAdminRejectsNonAdmin(t *testing.T) {
	err := RequireAdmin(Identity{ID: 42, IsAdmin: false})
	authErr, ok := err.(*Error)
	if !ok || authErr.Kind != Forbidden {
		t.Fatalf("expected Forbidden error, got %v", err)
	}
}

func TestRequireAdminAllowsAdmin(t *testing.T) {
	if err := RequireAdmin(Identity{ID: 0, IsAdmin: true}); err != nil {
		t.Errorf("expected admin identity to pass, got %v", err)
	}
}
