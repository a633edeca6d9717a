package forum_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mixelka/replypost/internal/forum"
	"github.com/mixelka/replypost/internal/orchestrator"
)

func TestByEmailStatusMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("email") {
		case "kate@example.com":
			json.NewEncoder(w).Encode(map[string]any{
				"id": 7, "email": "kate@example.com", "email_validated": true,
			})
		case "shared@example.com":
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := forum.NewClient(forum.Config{BaseURL: server.URL, APIKey: "secret"})
	ctx := context.Background()

	user, err := client.ByEmail(ctx, "kate@example.com")
	if err != nil {
		t.Fatalf("ByEmail failed: %v", err)
	}
	if user.ID != 7 || !user.EmailValidated {
		t.Errorf("unexpected user: %+v", user)
	}

	if _, err := client.ByEmail(ctx, "nobody@example.com"); !errors.Is(err, orchestrator.ErrUnknownUser) {
		t.Errorf("got %v, want ErrUnknownUser", err)
	}
	if _, err := client.ByEmail(ctx, "shared@example.com"); !errors.Is(err, orchestrator.ErrAmbiguousUser) {
		t.Errorf("got %v, want ErrAmbiguousUser", err)
	}
}

func TestPostAnswerSendsBodyAndParsesID(t *testing.T) {
	var gotPath string
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{"id": 101})
	}))
	defer server.Close()

	client := forum.NewClient(forum.Config{BaseURL: server.URL, APIKey: "secret"})
	id, err := client.PostAnswer(context.Background(), 7, 42, "the answer")
	if err != nil {
		t.Fatalf("PostAnswer failed: %v", err)
	}
	if id != 101 {
		t.Errorf("id = %d, want 101", id)
	}
	if gotPath != "/api/v1/email-gateway/posts/42/answers" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq["body"] != "the answer" {
		t.Errorf("request body = %+v", gotReq)
	}
}
