package service

import (
	"log/slog"

	"loanquery/internal/chunker"
	"loanquery/internal/config"
	"loanquery/internal/domain"
	"loanquery/internal/embedding"
	"loanquery/internal/errs"
	"loanquery/internal/generator"
	"loanquery/internal/summarizer"
	"loanquery/internal/vectorstore"
)

// FromConfig assembles a Service from the components selected in cfg.
func FromConfig(cfg *config.AppConfig, log *slog.Logger) (*Service, error) {
	emb, err := embedding.New(cfg.Embedder, log)
	if err != nil {
		return nil, err
	}
	st, err := vectorstore.New(cfg, log)
	if err != nil {
		return nil, err
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, errs.ErrInvalidConfig.Wrapf("unknown summarizer %q", cfg.Summarizer.Type)
	}

	return New(Options{
		DatasetPath:         cfg.Dataset.Path,
		TopK:                cfg.Retriever.TopK,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		EmbedConcurrency:    embedding.Concurrency(cfg.Embedder),
		DefaultAPIKey:       cfg.Generator.APIKey,
	}, chunker.NewRowChunker(), emb, st, sum, generator.New(cfg.Generator, log), log), nil
}
