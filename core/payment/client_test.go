package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "500" {
			t.Errorf("amount = %q, want 500", got)
		}
		if got := r.PostForm.Get("metadata[eventId]"); got != "7" {
			t.Errorf("metadata[eventId] = %q, want 7", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret","amount":500,"currency":"usd","status":"requires_payment_method"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test")
	intent, err := c.CreateIntent(context.Background(), 500, "usd", map[string]string{"eventId": "7"})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("intent = %+v", intent)
	}
}

func TestCreateIntentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid amount"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test")
	if _, err := c.CreateIntent(context.Background(), -1, "usd", nil); err == nil {
		t.Fatal("expected an error for a 400 response")
	}
}
