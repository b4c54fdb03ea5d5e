package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/park285/chess-tutor/internal/remote"
)

func TestSynthesizeSendsSSML(t *testing.T) {
	var body, key, format, ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		key = r.Header.Get("Ocp-Apim-Subscription-Key")
		format = r.Header.Get("X-Microsoft-OutputFormat")
		ctype = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", Endpoint: srv.URL}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	audio, err := c.Synthesize(context.Background(), "Knights before bishops & <tempo>")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if key != "k" || format != DefaultOutputFormat || ctype != "application/ssml+xml" {
		t.Fatalf("unexpected headers key=%q format=%q type=%q", key, format, ctype)
	}
	if !strings.Contains(body, `name="en-US-JennyNeural"`) || !strings.Contains(body, "bishops &amp; &lt;tempo&gt;") {
		t.Fatalf("unexpected ssml %s", body)
	}
}

func TestNewRequiresSecrets(t *testing.T) {
	_, err := New(Config{Region: "centralindia"}, nil, nil)
	if remote.KindOf(err) != remote.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	_, err = New(Config{APIKey: "k"}, nil, nil)
	if remote.KindOf(err) != remote.KindConfig || !strings.Contains(err.Error(), "SPEECH_REGION") {
		t.Fatalf("expected missing region error, got %v", err)
	}
	c, err := New(Config{APIKey: "k", Region: "centralindia"}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.url != "https://centralindia.tts.speech.microsoft.com/cognitiveservices/v1" {
		t.Fatalf("unexpected url %s", c.url)
	}
}

func TestSpeakSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", Endpoint: srv.URL}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	delivered := false
	c.Speak(context.Background(), "hello", func([]byte) { delivered = true })
	if delivered {
		t.Fatalf("failed synthesis must not deliver audio")
	}
	if _, err := c.Synthesize(context.Background(), "  "); err != ErrEmptyText {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
