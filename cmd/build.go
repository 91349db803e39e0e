package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/app"
	"github.com/JakeFAU/profile-harvester/internal/browser"
	"github.com/JakeFAU/profile-harvester/internal/checkpoint"
	"github.com/JakeFAU/profile-harvester/internal/config"
	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/embedding"
	"github.com/JakeFAU/profile-harvester/internal/vectorstore"
	filestore "github.com/JakeFAU/profile-harvester/internal/vectorstore/file"
	memorystore "github.com/JakeFAU/profile-harvester/internal/vectorstore/memory"
	pgstore "github.com/JakeFAU/profile-harvester/internal/vectorstore/postgres"
	"github.com/JakeFAU/profile-harvester/internal/vectorstore/qdrant"
)

func browserConfig(cfg config.BrowserConfig) browser.Config {
	return browser.Config{
		Headless:          cfg.Headless,
		RemoteURL:         cfg.RemoteURL,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout,
		WindowWidth:       cfg.WindowWidth,
		WindowHeight:      cfg.WindowHeight,
	}
}

// openPageClient returns the page client selected by browser.mode and a
// function releasing it.
func openPageClient(ctx context.Context, cfg config.BrowserConfig) (crawler.PageClient, func(), error) {
	if cfg.Mode == "static" {
		return browser.NewStatic(browser.StaticConfig{
			UserAgent:     cfg.UserAgent,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.NavigationTimeout,
		}), func() {}, nil
	}
	chrome, err := browser.NewChrome(browserConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("start chrome: %w", err)
	}
	tab, err := chrome.NewTab(ctx)
	if err != nil {
		chrome.Close()
		return nil, nil, err
	}
	return tab, func() {
		tab.Close()
		chrome.Close()
	}, nil
}

type snapshotLoader struct {
	backend string
	load    func(ctx context.Context) (crawler.Snapshot, error)
}

// checkpoints bundles the configured snapshot backends.
type checkpoints struct {
	saver   checkpoint.Multi
	loaders []snapshotLoader
	closers []func() error
}

func (c *checkpoints) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

func openCheckpoints(cfg config.CheckpointConfig, blobs app.BlobStore) (*checkpoints, error) {
	cps := &checkpoints{}
	for _, backend := range cfg.Backends {
		switch backend {
		case "file":
			f, err := checkpoint.NewFile(cfg.Path)
			if err != nil {
				_ = cps.Close()
				return nil, err
			}
			cps.saver = append(cps.saver, checkpoint.Measured{Backend: backend, Next: f})
			cps.loaders = append(cps.loaders, snapshotLoader{backend, func(context.Context) (crawler.Snapshot, error) {
				return checkpoint.Load(f.Path())
			}})
		case "blob":
			b, err := checkpoint.NewBlob(blobs, cfg.BlobPath)
			if err != nil {
				_ = cps.Close()
				return nil, err
			}
			cps.saver = append(cps.saver, checkpoint.Measured{Backend: backend, Next: b})
			cps.loaders = append(cps.loaders, snapshotLoader{backend, func(ctx context.Context) (crawler.Snapshot, error) {
				return b.Load(ctx, app.IsBlobNotFound)
			}})
		case "sqlite":
			s, err := checkpoint.OpenSQLite(cfg.SQLitePath)
			if err != nil {
				_ = cps.Close()
				return nil, err
			}
			cps.closers = append(cps.closers, s.Close)
			cps.saver = append(cps.saver, checkpoint.Measured{Backend: backend, Next: s})
			cps.loaders = append(cps.loaders, snapshotLoader{backend, s.Load})
		default:
			_ = cps.Close()
			return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
		}
	}
	return cps, nil
}

// resumeState restores the first snapshot found, trying backends in
// configuration order. It returns nil when no backend holds one.
func (c *checkpoints) resumeState(ctx context.Context, logger *zap.Logger) (*crawler.CrawlState, error) {
	for _, l := range c.loaders {
		snap, err := l.load(ctx)
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			logger.Debug("no checkpoint in backend", zap.String("backend", l.backend))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s checkpoint: %w", l.backend, err)
		}
		state, err := crawler.RestoreState(snap)
		if err != nil {
			return nil, fmt.Errorf("restore %s checkpoint: %w", l.backend, err)
		}
		logger.Info("resuming from checkpoint",
			zap.String("backend", l.backend),
			zap.Int("records", state.TotalCount()),
			zap.Int("pages", len(state.PageNumbers())),
		)
		return state, nil
	}
	return nil, nil
}

// openVectorSink builds the configured vector store, wrapped for metrics,
// and a function releasing it.
func openVectorSink(ctx context.Context, cfg config.Config) (embedding.VectorSink, func(), error) {
	var (
		sink    embedding.VectorSink
		release = func() {}
	)
	switch cfg.VectorStore.Backend {
	case "qdrant":
		s, err := qdrant.New(cfg.VectorStore.QdrantAddr, cfg.VectorStore.QdrantCollection)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		sink, release = s, func() { _ = s.Close() }
	case "postgres":
		s, err := pgstore.New(ctx, pgstore.Config{DSN: cfg.DB.DSN, Table: cfg.VectorStore.PostgresTable})
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureTable(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		sink, release = s, s.Close
	case "file":
		s, err := filestore.New(cfg.VectorStore.FilePath)
		if err != nil {
			return nil, nil, err
		}
		sink = s
	case "memory":
		sink = memorystore.New()
	default:
		return nil, nil, fmt.Errorf("unknown vectorstore backend %q", cfg.VectorStore.Backend)
	}
	return vectorstore.Measured{Sink: cfg.VectorStore.Backend, Next: sink}, release, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}, nil)
	case "ollama":
		return embedding.NewOllama(cfg.BaseURL, cfg.Model, nil), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
