package auth

import (
	"context"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret")
	user := User{ID: "u-1", Name: "Pat", Roles: []string{"staff", "editor"}}

	token, err := tm.GenerateToken(user, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != "u-1" || got.Name != "Pat" || len(got.Roles) != 2 {
		t.Errorf("user = %+v", got)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret")
	token, err := tm.GenerateToken(User{ID: "u-1"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tm.ValidateToken(token); err != ErrExpiredToken {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	token, err := NewTokenManager("key-one").GenerateToken(User{ID: "u-1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokenManager("key-two").ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret")
	if _, err := tm.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestRoleChecker(t *testing.T) {
	checker := NewRoleChecker(map[string][]string{
		"shop.manage":    {"admin", "merchant"},
		"content.create": {"*"},
	})
	ctx := context.Background()

	cases := []struct {
		name       string
		user       User
		permission string
		want       bool
	}{
		{"empty permission is public", User{}, "", true},
		{"role granted", User{ID: "u", Roles: []string{"merchant"}}, "shop.manage", true},
		{"role missing", User{ID: "u", Roles: []string{"viewer"}}, "shop.manage", false},
		{"wildcard grants anonymous", User{}, "content.create", true},
		{"unknown permission denied", User{ID: "u", Roles: []string{"admin"}}, "billing.refund", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := checker.Allowed(ctx, tc.user, tc.permission)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Allowed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	if got := UserFromContext(ctx); !got.Anonymous() {
		t.Errorf("empty context user = %+v, want anonymous", got)
	}

	user := User{ID: "u-1", Roles: []string{"staff"}}
	got := UserFromContext(WithUser(ctx, user))
	if got.ID != "u-1" || !got.HasRole("staff") {
		t.Errorf("user = %+v", got)
	}
}
