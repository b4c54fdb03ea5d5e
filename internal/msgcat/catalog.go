package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// Catalog holds prompt and UI text templates keyed by dotted paths such as
// "coach.user.position". Templates are compiled at load time and are
// read-only afterwards.
type Catalog struct {
	templates map[string]*template.Template
}

// New loads the embedded messages and then every *.yaml / *.yml file in
// overrideDir, if one is given.
func New(overrideDir string) (*Catalog, error) {
	var overrides fs.FS
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("message override dir: %w", err)
		}
		overrides = os.DirFS(dir)
	}
	return NewFS(overrides)
}

// NewFS is New with the overrides read from fsys. An override may only
// replace a key that the embedded defaults define, and two override files
// may not set the same key.
func NewFS(overrides fs.FS) (*Catalog, error) {
	raw, err := fs.ReadFile(defaultFiles, defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	texts, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", defaultFile, err)
	}
	if overrides != nil {
		if err := mergeOverrides(overrides, texts); err != nil {
			return nil, err
		}
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(texts))}
	for key, text := range texts {
		tpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", key, err)
		}
		c.templates[key] = tpl
	}
	return c, nil
}

func mergeOverrides(fsys fs.FS, texts map[string]string) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read message overrides: %w", err)
	}
	var files []string
	for _, e := range entries {
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".yaml", ".yml":
			if !e.IsDir() {
				files = append(files, e.Name())
			}
		}
	}
	slices.Sort(files)

	owner := make(map[string]string)
	for _, name := range files {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for key, text := range flat {
			if _, known := texts[key]; !known {
				return fmt.Errorf("%s: unknown message key %q", name, key)
			}
			if prev, dup := owner[key]; dup {
				return fmt.Errorf("message key %q set in both %s and %s", key, prev, name)
			}
			owner[key] = name
			texts[key] = text
		}
	}
	return nil
}

// flatten turns nested YAML mappings into dotted keys. Only string leaves are
// allowed.
func flatten(raw []byte) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var walk func(prefix string, node map[string]any) error
	walk = func(prefix string, node map[string]any) error {
		for k, v := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			switch val := v.(type) {
			case map[string]any:
				if err := walk(key, val); err != nil {
					return err
				}
			case string:
				out[key] = val
			case nil:
			default:
				return fmt.Errorf("%s: expected text, got %T", key, v)
			}
		}
		return nil
	}
	if err := walk("", root); err != nil {
		return nil, err
	}
	return out, nil
}

// Render executes the template stored under key. Unknown keys and fields
// missing from data are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	tpl, ok := c.templates[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("message not found: %s", key)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", err
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("message %s rendered empty", key)
	}
	return out, nil
}

// Text renders key and falls back to fallback on any error.
func (c *Catalog) Text(key string, data any, fallback string) string {
	if c == nil {
		return fallback
	}
	out, err := c.Render(key, data)
	if err != nil {
		return fallback
	}
	return out
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.templates[strings.TrimSpace(key)]
	return ok
}
