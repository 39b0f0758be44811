package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateValidate(t *testing.T) {
	s := NewJWTService("secret", 2)
	token, exp, err := s.Generate(4242, RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Until(exp); d < time.Hour || d > 2*time.Hour+time.Minute {
		t.Fatalf("expiry in %v, want about 2h", d)
	}
	claims, err := s.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 4242 || claims.Role != RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	s := NewJWTService("secret", 1)
	token, _, err := s.Generate(1, RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	other := NewJWTService("other", 1)
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err = %v", err)
	}
	if _, err := s.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: err = %v", err)
	}

	later := NewJWTService("secret", 1)
	later.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	if _, err := later.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: err = %v", err)
	}
}
