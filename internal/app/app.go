package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/config"
	"github.com/seanblong/docqa/internal/convert"
	"github.com/seanblong/docqa/internal/index"
	"github.com/seanblong/docqa/internal/indexer"
	"github.com/seanblong/docqa/internal/ledger"
	"github.com/seanblong/docqa/internal/search"
	"github.com/seanblong/docqa/internal/store"
	"github.com/seanblong/docqa/pkg/models"
)

// App is a fully wired pipeline: ledger, vector index, model gateway,
// ingestion and question answering.
type App struct {
	Config  config.Specification
	Ledger  ledger.Ledger
	Index   index.VectorIndex
	Gateway *ai.Gateway
	Indexer *indexer.Indexer
	Search  *search.Service

	ingestMu sync.Mutex
	closers  []func() error
}

// New builds the pipeline described by cfg. The returned App must be closed.
func New(ctx context.Context, cfg config.Specification) (*App, error) {
	a := &App{Config: cfg}

	client, err := ai.NewClient(ctx, cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	a.Gateway = ai.NewGateway(client, client, cfg.GatewayOptions())

	if err := a.openBackend(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Indexer, err = indexer.New(cfg.IndexerOptions(), a.Ledger, a.Index, a.Gateway, convert.NewRegistry())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Search, err = search.NewService(a.Gateway, a.Gateway, a.Index, cfg.SearchOptions())
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openBackend(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Backend {
	case config.BackendPostgres:
		st, err := store.New(ctx, cfg.Database, cfg.IndexName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, st.Close)
		dim := a.Gateway.Dim()
		if dim == 0 {
			return fmt.Errorf("%w: embedding dimension must be set for the postgres backend", models.ErrInvalidInput)
		}
		if err := st.Migrate(ctx, dim); err != nil {
			return err
		}
		a.Ledger = st.Ledger()
		a.Index = st
	default:
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, l.Close)
		a.Ledger = l
		ix, err := index.Open(cfg.IndexDir, cfg.IndexName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, ix.Close)
		a.Index = ix
	}
	return nil
}

// Ingest runs one ingestion pass. Concurrent calls are serialized.
func (a *App) Ingest(ctx context.Context) (models.RunSummary, error) {
	a.ingestMu.Lock()
	defer a.ingestMu.Unlock()
	return a.Indexer.Run(ctx)
}

// Close releases the backend in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("close backend")
		return err
	}
	return nil
}
