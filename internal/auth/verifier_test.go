package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/ytgate/internal/models"
	tu "github.com/desertthunder/ytgate/internal/testing"
)

func TestBearerToken(t *testing.T) {
	tc := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "  BEARER   abc  ", want: "abc"},
		{header: "", wantErr: true},
		{header: "Bearer", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Basic dXNlcjpwYXNz", wantErr: true},
		{header: "Token abc", wantErr: true},
		{header: "Bearer a b", wantErr: true},
	}
	for _, tt := range tc {
		t.Run(tt.header, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredential) {
					t.Errorf("expected ErrInvalidCredential, got %q %v", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("BearerToken(%q) = %q, %v; want %q", tt.header, got, err, tt.want)
			}
		})
	}
}

func TestSessionVerifier(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	v := NewSessionVerifier(store, "")

	token, _, err := store.Create(ctx, tu.TestCredential(), models.SessionMeta{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	noScope := tu.TestCredential()
	noScope.RefreshToken = "1//other"
	noScope.Scopes = []string{"openid", "email"}
	noScopeToken, _, err := store.Create(ctx, noScope, models.SessionMeta{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("valid session with scope", func(t *testing.T) {
		cred, err := v.Verify(ctx, "Bearer "+token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if cred.Token != tu.TestCredential().Token {
			t.Errorf("unexpected credential %+v", cred)
		}
	})

	t.Run("insufficient scope is 403 not 401", func(t *testing.T) {
		_, err := v.Verify(ctx, "Bearer "+noScopeToken)
		if !errors.Is(err, ErrInsufficientScope) {
			t.Fatalf("expected ErrInsufficientScope, got %v", err)
		}
		if errors.Is(err, ErrInvalidCredential) {
			t.Error("scope failure must not look like an identity failure")
		}
	})

	t.Run("identity failures", func(t *testing.T) {
		for _, h := range []string{"", "Basic abc", "Bearer unknown"} {
			if _, err := v.Verify(ctx, h); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Verify(%q): expected ErrInvalidCredential, got %v", h, err)
			}
		}
	})

	t.Run("expired session", func(t *testing.T) {
		clock.Advance(time.Hour)
		if _, err := v.Verify(ctx, "Bearer "+token); !errors.Is(err, ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired, got %v", err)
		}
	})
}

func TestCredentialContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := CredentialFromContext(ctx); ok {
		t.Error("empty context should carry no credential")
	}

	c := tu.TestCredential()
	ctx = WithCredential(ctx, &c)
	got, ok := CredentialFromContext(ctx)
	if !ok || got.Token != c.Token {
		t.Errorf("expected credential from context, got %v %v", got, ok)
	}

	ctx = WithSessionToken(ctx, "tok")
	if tok, ok := SessionTokenFromContext(ctx); !ok || tok != "tok" {
		t.Errorf("expected session token, got %q %v", tok, ok)
	}
}
