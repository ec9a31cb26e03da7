package summary

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	"digestbot/internal/llm"
)

// The two placeholder tokens a template carries. Each is substituted at
// most once per message.
const (
	placeholderFormat        = "{format_instructions}"
	placeholderNotifications = "{notifications}"
)

//go:embed template.yaml
var defaultTemplateYAML []byte

// Template is an ordered prompt plus the model that should run it.
type Template struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
}

// Render substitutes the dialect's format instructions, then the digest
// text, into each message content. The instruction token goes first so
// brace-like text inside the digest is never re-substituted.
func (t *Template) Render(dialect Dialect, digestText string) []llm.Message {
	out := make([]llm.Message, len(t.Messages))
	for i, m := range t.Messages {
		content := strings.Replace(m.Content, placeholderFormat, dialect.Instructions(), 1)
		content = strings.Replace(content, placeholderNotifications, digestText, 1)
		out[i] = llm.Message{Role: m.Role, Content: content}
	}
	return out
}

func parseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if strings.TrimSpace(t.Model) == "" {
		return nil, errors.New("template: model is required")
	}
	if len(t.Messages) == 0 {
		return nil, errors.New("template: at least one message is required")
	}
	var hasFormat, hasNotifications bool
	for _, m := range t.Messages {
		if strings.Contains(m.Content, placeholderFormat) {
			hasFormat = true
		}
		if strings.Contains(m.Content, placeholderNotifications) {
			hasNotifications = true
		}
	}
	if !hasNotifications {
		return nil, fmt.Errorf("template: no message contains %s", placeholderNotifications)
	}
	if !hasFormat {
		return nil, fmt.Errorf("template: no message contains %s", placeholderFormat)
	}
	return &t, nil
}

// TemplateProvider supplies the prompt template for a run. Injected so
// tests can use a fixed in-memory template.
type TemplateProvider interface {
	Template() (*Template, error)
}

// Default returns the embedded template. Parsed once; the parse error, if
// any, is returned on every call.
func Default() TemplateProvider { return &defaultProvider{} }

type defaultProvider struct {
	once sync.Once
	tpl  *Template
	err  error
}

func (p *defaultProvider) Template() (*Template, error) {
	p.once.Do(func() {
		p.tpl, p.err = parseTemplate(defaultTemplateYAML)
	})
	return p.tpl, p.err
}

// FileProvider reads a YAML template from disk on every call, so daemon
// runs pick up edits without a restart.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider { return &FileProvider{path: path} }

func (p *FileProvider) Template() (*Template, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return parseTemplate(b)
}

// Static wraps a fixed template.
type Static struct {
	Tpl Template
}

func (s Static) Template() (*Template, error) { return &s.Tpl, nil }
