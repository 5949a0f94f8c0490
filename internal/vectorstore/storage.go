package vectorstore

import (
	"log/slog"
	"time"

	"loanquery/internal/config"
	"loanquery/internal/domain"
	"loanquery/internal/errs"
	"loanquery/internal/vectorstore/disk"
	"loanquery/internal/vectorstore/qdrant"
)

// Storage persists vectors and supports similarity search.
type Storage = domain.VectorStore

// New builds the store selected in cfg. Both stores keep their manifest in
// the index directory.
func New(cfg *config.AppConfig, log *slog.Logger) (Storage, error) {
	switch cfg.VectorStore.Type {
	case "disk", "":
		return disk.NewStorage(cfg.Index.Dir, log), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil || q.URL == "" {
			return nil, errs.ErrInvalidConfig.Wrapf("qdrant vector store needs vector_store.qdrant.url")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:         q.URL,
			APIKey:      q.APIKey,
			Collection:  q.Collection,
			Timeout:     time.Duration(q.TimeoutSecs) * time.Second,
			ManifestDir: cfg.Index.Dir,
		}, log), nil
	}
	return nil, errs.ErrInvalidConfig.Wrapf("unknown vector store %q", cfg.VectorStore.Type)
}
