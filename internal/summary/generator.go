// Package summary turns a formatted digest into natural-language text via
// a chat-completion model.
package summary

import (
	"context"
	"fmt"

	"digestbot/internal/llm"
	logx "digestbot/pkg/logx"
)

// maxSummaryTokens bounds generated length on every completion call.
const maxSummaryTokens = 1000

// ChatClient is the completion capability the generator needs.
type ChatClient interface {
	ChatCompletion(ctx context.Context, model string, messages []llm.Message, maxTokens int) (string, error)
}

type Generator struct {
	provider TemplateProvider
	client   ChatClient
	log      logx.Logger
}

func NewGenerator(provider TemplateProvider, client ChatClient, log logx.Logger) *Generator {
	return &Generator{
		provider: provider,
		client:   client,
		log:      log.With(logx.String("comp", "summary")),
	}
}

// Summarize loads the template, renders it for the dialect, and asks the
// model. Callers invoke this only when the digest is non-empty.
func (g *Generator) Summarize(ctx context.Context, digestText string, dialect Dialect) (string, error) {
	tpl, err := g.provider.Template()
	if err != nil {
		return "", fmt.Errorf("load template: %w", err)
	}

	messages := tpl.Render(dialect, digestText)
	text, err := g.client.ChatCompletion(ctx, tpl.Model, messages, maxSummaryTokens)
	if err != nil {
		return "", err
	}

	g.log.Debug("summary generated",
		logx.String("dialect", dialect.String()),
		logx.String("model", tpl.Model),
		logx.Int("chars", len(text)),
	)
	return text, nil
}
