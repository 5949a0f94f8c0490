package embedding

import (
	"log/slog"
	"time"

	"loanquery/internal/config"
	"loanquery/internal/domain"
	"loanquery/internal/embedding/openai"
	"loanquery/internal/embedding/tfidf"
	"loanquery/internal/errs"
)

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// New builds the embedder selected in cfg.
func New(cfg config.EmbedderConfig, log *slog.Logger) (Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		return openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		}, log)
	}
	return nil, errs.ErrInvalidConfig.Wrapf("unknown embedder %q", cfg.Type)
}

// Concurrency is how many texts may be embedded at once.
func Concurrency(cfg config.EmbedderConfig) int {
	if cfg.Type == "openai" && cfg.OpenAI != nil && cfg.OpenAI.Concurrency > 0 {
		return cfg.OpenAI.Concurrency
	}
	return 1
}
