package authguard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTokenServer(t *testing.T, hits *atomic.Int32, expiresIn int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type: got %q", got)
		}
		if got := r.PostFormValue("client_id"); got != "relay-worker" {
			t.Errorf("client_id: got %q", got)
		}
		n := hits.Add(1)
		scope := r.PostFormValue("scope")
		fmt.Fprintf(w, `{"access_token": "tok-%s-%d", "token_type": "Bearer", "expires_in": %d}`,
			scope, n, expiresIn)
	}))
}

func newTestIssuer(url string) *Issuer {
	return NewIssuer(IssuerConfig{
		TokenURL:     url,
		ClientID:     "relay-worker",
		ClientSecret: "secret",
	})
}

func TestIssuer_CachesPerScope(t *testing.T) {
	var hits atomic.Int32
	server := newTokenServer(t, &hits, 3600)
	defer server.Close()

	issuer := newTestIssuer(server.URL)

	first, err := issuer.Token(context.Background(), "orders:read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := issuer.Token(context.Background(), "orders:read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("cached token changed: %q vs %q", first, second)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected 1 token request, got %d", n)
	}

	// Другой scope получает собственный токен
	otherScope, err := issuer.Token(context.Background(), "billing:write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if otherScope == first {
		t.Error("scopes must not share tokens")
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("expected 2 token requests, got %d", n)
	}
}

func TestIssuer_InvalidateForcesRefresh(t *testing.T) {
	var hits atomic.Int32
	server := newTokenServer(t, &hits, 3600)
	defer server.Close()

	issuer := newTestIssuer(server.URL)

	first, err := issuer.Token(context.Background(), "orders:read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issuer.Invalidate("orders:read")

	second, err := issuer.Token(context.Background(), "orders:read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Error("invalidated token must be reissued")
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("expected 2 token requests, got %d", n)
	}
}

func TestIssuer_ShortLivedTokenNotCached(t *testing.T) {
	var hits atomic.Int32
	// expires_in меньше запаса expirySkew: токен протухает сразу
	server := newTokenServer(t, &hits, 30)
	defer server.Close()

	issuer := newTestIssuer(server.URL)

	if _, err := issuer.Token(context.Background(), "orders:read"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := issuer.Token(context.Background(), "orders:read"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("short-lived token must be refetched, got %d requests", n)
	}
}

func TestIssuer_EndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	issuer := newTestIssuer(server.URL)

	_, err := issuer.Token(context.Background(), "orders:read")
	var authE *AuthError
	if !errors.As(err, &authE) || authE.Kind != AuthIssuance {
		t.Fatalf("expected AuthIssuance, got %v", err)
	}
}
