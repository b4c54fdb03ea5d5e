package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestRenderEmbeddedPrompts(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Render("coach.user.position", map[string]string{"FEN": "8/8/8/8/8/8/8/K6k w - - 0 1", "Move": "Kb2"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "why is Kb2 a good move") {
		t.Fatalf("unexpected prompt: %q", out)
	}
	if _, err := c.Render("coach.user.detailed", map[string]string{"Move": "e4"}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if got := c.Text("missing.key", nil, "fallback"); got != "fallback" {
		t.Fatalf("Text fallback = %q", got)
	}
}

func TestOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("coach:\n  system: \"You are a grandmaster.\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("coach.system", nil, ""); got != "You are a grandmaster." {
		t.Fatalf("override not applied: %q", got)
	}
	if !c.Has("coach.fallback") {
		t.Fatalf("embedded keys should survive overrides")
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("coach:\n  system: \"dup\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestOverridesRejectBadInput(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"unknown key":  {"a.yaml": {Data: []byte("coach:\n  sistem: \"typo\"\n")}},
		"bad template": {"a.yaml": {Data: []byte("tutor:\n  reply: \"{{.Move\"\n")}},
		"non-string":   {"a.yaml": {Data: []byte("tutor:\n  reply: 3\n")}},
	}
	for name, fsys := range cases {
		if _, err := NewFS(fsys); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestOverridesIgnoreOtherFiles(t *testing.T) {
	c, err := NewFS(fstest.MapFS{
		"notes.txt":     {Data: []byte("not yaml")},
		"tutor.yml":     {Data: []byte("tutor:\n  reply: \"Engine played {{.Move}}\"\n")},
		"sub/deep.yaml": {Data: []byte("coach:\n  system: \"ignored\"\n")},
	})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if got := c.Text("tutor.reply", map[string]string{"Move": "e5"}, ""); got != "Engine played e5" {
		t.Fatalf("reply = %q", got)
	}
	if got := c.Text("coach.system", nil, ""); got != "You are a chess coach." {
		t.Fatalf("nested directory should not be read: %q", got)
	}
}

func TestNewMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing override dir")
	}
}
