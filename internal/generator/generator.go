// Package generator turns retrieved loan records into an answer, either from
// a chat-completions endpoint or from the offline demo responder.
package generator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"loanquery/internal/config"
	"loanquery/internal/domain"
	"loanquery/internal/errs"
)

// Credentials decide between live and demo generation for one request.
type Credentials struct {
	APIKey string
	Demo   bool
}

// Live reports whether a remote call should be attempted.
func (c Credentials) Live() bool {
	return !c.Demo && strings.TrimSpace(c.APIKey) != ""
}

// Answer is the generated text and how it was produced. Notice is set when a
// live call failed and the demo answer stands in.
type Answer struct {
	Text   string
	Mode   domain.Mode
	Notice string
}

type completer interface {
	Complete(ctx context.Context, apiKey, system, prompt string) (string, error)
}

type Generator struct {
	client completer
	demo   Demo
	log    *slog.Logger
}

func New(cfg config.GeneratorConfig, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		client: NewClient(ClientConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		}),
		log: log.With("component", "generator", "model", cfg.Model),
	}
}

// Generate never returns an error: live failures fall back to the demo answer
// and carry the reason in Notice.
func (g *Generator) Generate(ctx context.Context, creds Credentials, question string, results []domain.SearchResult) Answer {
	if !creds.Live() {
		return Answer{Text: g.demo.Respond(question, results), Mode: domain.ModeDemo}
	}
	start := time.Now()
	text, err := g.client.Complete(ctx, strings.TrimSpace(creds.APIKey), SystemPrompt, BuildPrompt(question, results))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errs.ErrUpstream.Wrapf("empty completion")
	}
	if err != nil {
		g.log.Warn("live generation failed", "error", err, "elapsed", time.Since(start))
		return Answer{
			Text:   g.demo.Respond(question, results),
			Mode:   domain.ModeDemo,
			Notice: errs.UserMessage(err),
		}
	}
	g.log.Debug("live answer", "elapsed", time.Since(start), "context", len(results))
	return Answer{Text: text, Mode: domain.ModeLive}
}
