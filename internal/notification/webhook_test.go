package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier_Send(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertCritical,
		Title:   "🔻 SELL CONFIRMED ▼",
		Message: "Close  : 108.00",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.Severity != "CRITICAL" {
		t.Errorf("severity: got %q", got.Severity)
	}
	if got.Title != "🔻 SELL CONFIRMED ▼" || got.Body != "Close  : 108.00" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.SentAt == "" {
		t.Error("sent_at missing")
	}
}

func TestWebhookNotifier_Send_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected error on 502")
	}
}
