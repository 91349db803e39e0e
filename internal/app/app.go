// Package app initializes and holds long-lived services shared by the
// harvester commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/api"
	"github.com/JakeFAU/profile-harvester/internal/config"
	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/progress/sinks"
	"github.com/JakeFAU/profile-harvester/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/profile-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/profile-harvester/internal/storage/gcs"
	"github.com/JakeFAU/profile-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/profile-harvester/internal/storage/memory"
	"github.com/JakeFAU/profile-harvester/internal/storage/postgres"
	"github.com/JakeFAU/profile-harvester/internal/store"
)

// BlobStore is the object storage shared by checkpoints and screenshot archives.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// RunStore is a run repository that owns a connection.
type RunStore interface {
	store.RunRepository
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Close()
}

// ClientFactory creates the cloud and database clients. Tests replace it to
// avoid network access.
type ClientFactory interface {
	Storage(ctx context.Context) (*gcsstorage.Client, error)
	PubSub(ctx context.Context, projectID string) (*pubsub.Client, error)
	RunStore(ctx context.Context, dsn string) (RunStore, error)
}

// DefaultClientFactory dials the real services.
type DefaultClientFactory struct{}

// Storage implements ClientFactory.
func (DefaultClientFactory) Storage(ctx context.Context) (*gcsstorage.Client, error) {
	return gcsstorage.NewClient(ctx)
}

// PubSub implements ClientFactory.
func (DefaultClientFactory) PubSub(ctx context.Context, projectID string) (*pubsub.Client, error) {
	return pubsub.NewClient(ctx, projectID)
}

// RunStore implements ClientFactory.
func (DefaultClientFactory) RunStore(ctx context.Context, dsn string) (RunStore, error) {
	rs, err := postgres.NewRunStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	factory    ClientFactory
	registerer prometheus.Registerer
	publisher  publisher.Publisher
}

// WithClientFactory replaces the client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(o *options) {
		if f != nil {
			o.factory = f
		}
	}
}

// WithRegisterer registers progress collectors against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

// WithPublisher uses p for completion messages instead of dialing Pub/Sub.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// App holds the shared services for one command invocation.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer
	blobs      BlobStore
	runs       store.RunRepository
	pinger     func(context.Context) error
	publisher  publisher.Publisher
	status     *api.StatusTracker
	closers    []func()
}

// NewApp creates the services selected by cfg. It fails fast when a
// configured backend cannot be reached.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{factory: DefaultClientFactory{}, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		registerer: o.registerer,
		status:     api.NewStatusTracker(),
	}

	blobs, err := a.openBlobStore(ctx, o.factory)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.blobs = blobs

	if err := a.openRunStore(ctx, o.factory); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize run store: %w", err)
	}

	if err := a.openPublisher(ctx, o); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize publisher: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres_runs", cfg.DB.DSN != ""),
		zap.Bool("publisher", a.publisher != nil),
	)
	return a, nil
}

func (a *App) openBlobStore(ctx context.Context, f ClientFactory) (BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := f.Storage(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
	case "local":
		return local.New(local.Config{BaseDir: filepath.Join(a.cfg.Storage.LocalDir, a.cfg.Storage.Prefix)})
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) openRunStore(ctx context.Context, f ClientFactory) error {
	if a.cfg.DB.DSN == "" {
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	rs, err := f.RunStore(ctx, a.cfg.DB.DSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rs.Close)
	if err := rs.EnsureSchema(ctx); err != nil {
		return err
	}
	a.runs = rs
	a.pinger = rs.Ping
	return nil
}

func (a *App) openPublisher(ctx context.Context, o options) error {
	if a.cfg.PubSub.TopicName == "" {
		return nil
	}
	if o.publisher != nil {
		a.publisher = o.publisher
		return nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id is required when pubsub.topic_name is set")
	}
	client, err := o.factory.PubSub(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.closers = append(a.closers, func() {
		pub.Close()
		_ = client.Close()
	})
	a.publisher = pub
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Blobs returns the configured blob store.
func (a *App) Blobs() BlobStore { return a.blobs }

// Runs returns the run repository. Without a DSN runs are kept in memory.
func (a *App) Runs() store.RunRepository { return a.runs }

// Status returns the live status tracker fed by the progress hub.
func (a *App) Status() *api.StatusTracker { return a.status }

// Publisher returns the completion publisher, or nil when none is configured.
func (a *App) Publisher() publisher.Publisher { return a.publisher }

// NewHub builds a progress hub fanning out to the log, Prometheus, run store
// and status sinks.
func (a *App) NewHub(ctx context.Context) (*progress.Hub, error) {
	prom, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return nil, err
	}
	return progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress"),
	},
		sinks.NewLogSink(a.logger.Named("progress")),
		prom,
		sinks.NewStoreSink(a.runs, a.logger.Named("store")),
		a.status,
	), nil
}

// ServeStatus runs the status server until ctx ends when it is enabled.
// It returns immediately otherwise.
func (a *App) ServeStatus(ctx context.Context) error {
	if !a.cfg.Server.Enabled {
		return nil
	}
	var opts []api.Option
	if a.pinger != nil {
		opts = append(opts, api.WithReadinessCheck("postgres", a.pinger))
	}
	srv := api.NewServer(a.status, a.runs, a.cfg.Server, a.logger.Named("api"), opts...)
	return srv.ListenAndServe(ctx)
}

// Announce publishes a completion message when a publisher is configured.
// Failures are logged and do not fail the run.
func (a *App) Announce(ctx context.Context, payload any) {
	if a.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	id, err := a.publisher.Publish(pubCtx, a.cfg.PubSub.TopicName, payload)
	if err != nil {
		a.logger.Warn("completion publish failed", zap.String("topic", a.cfg.PubSub.TopicName), zap.Error(err))
		return
	}
	a.logger.Info("completion published", zap.String("topic", a.cfg.PubSub.TopicName), zap.String("message_id", id))
}

// Close shuts down every service in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// IsBlobNotFound reports whether err is a missing-object error from any blob
// backend.
func IsBlobNotFound(err error) bool {
	return errors.Is(err, gcs.ErrNotFound) ||
		errors.Is(err, local.ErrNotFound) ||
		errors.Is(err, memorystorage.ErrNotFound)
}
