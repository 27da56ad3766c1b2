package httpapi

import (
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour)

	issued, err := manager.Issue("  Maria ", RoleCashier)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	actor, err := manager.ParseToken(issued.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "maria" || actor.Role != RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour)
	if _, err := manager.Issue("maria", "owner"); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
	if _, err := manager.Issue(" ", RoleAdmin); err == nil {
		t.Fatalf("expected empty username to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Minute)
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return base }

	issued, err := manager.Issue("maria", RoleCashier)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	manager.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := manager.ParseToken(issued.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	issued, err := NewAuthManager("secret-a", time.Hour).Issue("maria", RoleAdmin)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := NewAuthManager("secret-b", time.Hour).ParseToken(issued.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "maria",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	}
	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := NewAuthManager("test-secret", time.Hour).ParseToken(unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
	if !strings.HasSuffix(unsigned, ".") {
		t.Fatalf("expected unsigned token to have an empty signature, got %q", unsigned)
	}
}
