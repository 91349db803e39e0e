package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/checkpoint"
	"github.com/JakeFAU/profile-harvester/internal/clock/system"
	"github.com/JakeFAU/profile-harvester/internal/config"
	"github.com/JakeFAU/profile-harvester/internal/embedding"
	"github.com/JakeFAU/profile-harvester/internal/id/uuid"
	"github.com/JakeFAU/profile-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/profile-harvester/internal/profile"
	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/store"
	"github.com/JakeFAU/profile-harvester/internal/telemetry"
)

// newEmbedCmd creates the 'embed' subcommand, which uploads text embeddings
// of analyzed profiles or crawled records to the vector store.
func newEmbedCmd() *cobra.Command {
	var source, input string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embeds profiles or crawl records and uploads them to the vector store",
		Long: `Reads either the profiles output file or a crawl checkpoint, embeds each
entry's text and upserts the vectors in fixed-size batches. A failed batch is
logged and dropped; an interrupted run flushes its partial batch first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmbedCommand(cmd.Context(), source, input)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "override embedding.source (profiles or checkpoint)")
	cmd.Flags().StringVar(&input, "input", "", "override embedding.input")
	return cmd
}

func runEmbedCommand(ctx context.Context, source, input string) error {
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config()
	if source != "" {
		cfg.Embedding.Source = source
	}
	if input != "" {
		cfg.Embedding.Input = input
	}
	if err := cfg.RequireEmbed(); err != nil {
		return err
	}
	logger := a.Logger().Named("embed")

	items, err := loadItems(cfg.Embedding)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		logger.Info("nothing to embed", zap.String("input", cfg.Embedding.Input))
		return nil
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	sink, release, err := openVectorSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer release()

	runID := uuid.NewRunID()
	ctx, span := telemetry.StartRun(ctx, string(store.KindEmbed), runID.String())
	defer span.End()

	hub, err := a.NewHub(ctx)
	if err != nil {
		return err
	}
	reporter := progress.NewReporter(hub, progress.UUIDToBytes(runID), system.New())

	pipeline := embedding.NewPipeline(embedding.Config{
		BatchSize:    cfg.Embedding.BatchSize,
		Dimensions:   cfg.Embedding.Dimensions,
		FlushTimeout: cfg.Embedding.FlushTimeout,
	}, embedder, sink, logger,
		embedding.WithLimiter(ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Embedding.RequestsPerSecond})),
		embedding.WithObserver(reporter),
	)

	logger.Info("embedding starting",
		zap.String("run_id", runID.String()),
		zap.String("source", cfg.Embedding.Source),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.Int("items", len(items)),
	)
	reporter.RunStarted(string(store.KindEmbed), cfg.Embedding.Input)
	res, runErr := pipeline.Run(ctx, items)
	reporter.RunFinished(res.Uploaded, summarize(res), runErr)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	cancel()
	return runErr
}

func loadItems(cfg config.EmbeddingConfig) ([]embedding.Item, error) {
	switch cfg.Source {
	case "profiles":
		profiles, err := profile.LoadProfiles(cfg.Input)
		if err != nil {
			return nil, err
		}
		items := make([]embedding.Item, 0, len(profiles))
		for _, p := range profiles {
			items = append(items, embedding.ItemFromProfile(p))
		}
		return items, nil
	case "checkpoint":
		snap, err := checkpoint.Load(cfg.Input)
		if err != nil {
			return nil, err
		}
		return embedding.ItemsFromSnapshot(snap)
	default:
		return nil, fmt.Errorf("unknown embedding source %q", cfg.Source)
	}
}

func summarize(res embedding.Result) string {
	return fmt.Sprintf("embedded=%d uploaded=%d embed_failures=%d invalid=%d batches_failed=%d",
		res.Embedded, res.Uploaded, res.EmbedFailures, res.Invalid, res.BatchesFailed)
}
