package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestPasswordGrantExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Fatalf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		if err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if form.Get("grant_type") != "password" || form.Get("username") != "pool@example.com" || form.Get("password") != "pw" {
			t.Fatalf("unexpected form: %v", form)
		}
		if r.Header.Get("Authorization") != "" {
			t.Fatalf("token request must not carry authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"abc","token_type":"bearer","expires_in":3600}`)
	}))
	defer server.Close()

	grant, err := NewPasswordGrant(Declaration{Provider: "flipr", TokenURL: server.URL + "/OAuth2/token"}, server.Client())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	token, err := grant.Exchange(context.Background(), "pool@example.com", "pw")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if token.AccessToken != "abc" {
		t.Fatalf("unexpected token: %q", token.AccessToken)
	}
}

func TestPasswordGrantRejected(t *testing.T) {
	for _, contentType := range []string{"application/json", "text/plain"} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"bad creds"}`)
		}))

		grant, err := NewPasswordGrant(Declaration{Provider: "flipr", TokenURL: server.URL}, server.Client())
		if err != nil {
			t.Fatalf("new grant: %v", err)
		}

		_, err = grant.Exchange(context.Background(), "u", "wrong")
		server.Close()
		if err == nil {
			t.Fatalf("%s: expected error", contentType)
		}

		var exchangeErr *ExchangeError
		if !errors.As(err, &exchangeErr) {
			t.Fatalf("%s: expected ExchangeError, got %T", contentType, err)
		}
		if exchangeErr.Status != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d", contentType, exchangeErr.Status)
		}
		msg := err.Error()
		if !strings.Contains(msg, "400") || !strings.Contains(msg, "invalid_grant") || !strings.Contains(msg, "bad creds") {
			t.Fatalf("%s: unexpected message %q", contentType, msg)
		}
	}
}

func TestNewPasswordGrantValidation(t *testing.T) {
	if _, err := NewPasswordGrant(Declaration{TokenURL: "http://x"}, nil); err == nil {
		t.Fatalf("expected provider error")
	}
	if _, err := NewPasswordGrant(Declaration{Provider: "flipr"}, nil); err == nil {
		t.Fatalf("expected token url error")
	}
}
