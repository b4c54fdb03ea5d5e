package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/park285/chess-tutor/internal/msgcat"
	"github.com/park285/chess-tutor/internal/remote"
)

func catalog(t *testing.T) *msgcat.Catalog {
	t.Helper()
	c, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return c
}

func TestNewMissingSecretsFailsBeforeAnyRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}, nil, catalog(t), nil)
	if remote.KindOf(err) != remote.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("error should name the missing secret: %v", err)
	}
	_, err = New(Config{APIKey: "k"}, nil, catalog(t), nil)
	if remote.KindOf(err) != remote.KindConfig {
		t.Fatalf("expected config error for missing endpoint, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("no request may be sent when configuration is incomplete")
	}
}

func TestExplainSendsRoleTaggedMessages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt-4/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("api-version") != "2025-02-01-preview" || r.Header.Get("api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  It controls the center.  "}}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL + "/", APIKey: "secret"}, nil, catalog(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := c.Explain(context.Background(), Request{FEN: "startfen", MoveSAN: "e4"})
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if text != "It controls the center." {
		t.Fatalf("unexpected text %q", text)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.Messages[0].Content != "You are a chess coach." || !strings.Contains(got.Messages[1].Content, "(startfen)") {
		t.Fatalf("unexpected prompts: %+v", got.Messages)
	}
	if got.Temperature != 0.7 || got.MaxTokens != 250 {
		t.Fatalf("unexpected sampling: temp=%v max=%d", got.Temperature, got.MaxTokens)
	}
}

func TestExplainDetailedStyle(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "k", Style: StyleDetailed}, nil, catalog(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Explain(context.Background(), Request{MoveSAN: "Nf3", Side: "White"}); err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got.MaxTokens != 600 || !strings.Contains(got.Messages[1].Content, "White has just played Nf3") {
		t.Fatalf("unexpected detailed request: %+v", got)
	}
}

func TestExplainFailureKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("api-key") {
		case "bad":
			w.WriteHeader(http.StatusUnauthorized)
		case "empty":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			_, _ = w.Write([]byte(`<html>`))
		}
	}))
	defer srv.Close()

	cases := map[string]remote.Kind{
		"bad":     remote.KindRejected,
		"empty":   remote.KindMalformed,
		"garbage": remote.KindMalformed,
	}
	for key, want := range cases {
		c, err := New(Config{Endpoint: srv.URL, APIKey: key}, nil, catalog(t), nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, err = c.Explain(context.Background(), Request{FEN: "f", MoveSAN: "e4"})
		if remote.KindOf(err) != want {
			t.Errorf("key %s: kind=%s want %s (%v)", key, remote.KindOf(err), want, err)
		}
	}
}

func TestUnknownStyleRejected(t *testing.T) {
	if _, err := New(Config{Endpoint: "https://x.example", APIKey: "k", Style: "poetic"}, nil, catalog(t), nil); remote.KindOf(err) != remote.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}
