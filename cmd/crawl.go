package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/profile-harvester/internal/clock/system"
	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/id/uuid"
	"github.com/JakeFAU/profile-harvester/internal/profile"
	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/publisher"
	"github.com/JakeFAU/profile-harvester/internal/store"
	"github.com/JakeFAU/profile-harvester/internal/telemetry"
)

type crawlFlags struct {
	resume   bool
	startURL string
	maxPages int
}

// newCrawlCmd creates the 'crawl' subcommand, which walks a paginated listing
// and checkpoints every page.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls a paginated listing into a deduplicated record set",
		Long: `Walks the configured listing page by page, extracting one record per
result, deduplicating them across pages and writing a checkpoint after every
page. With --resume, previously collected records are restored first so that
re-crawled pages only add new entries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd.Context(), flags)
		},
	}
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "restore records from the latest checkpoint before crawling")
	cmd.Flags().StringVar(&flags.startURL, "start-url", "", "override crawler.start_url")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", -1, "override crawler.max_pages (0 = unlimited)")
	return cmd
}

func runCrawlCommand(ctx context.Context, flags crawlFlags) error {
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config()
	if flags.startURL != "" {
		cfg.Crawler.StartURL = flags.startURL
	}
	if flags.maxPages >= 0 {
		cfg.Crawler.MaxPages = flags.maxPages
	}
	if err := cfg.RequireCrawl(); err != nil {
		return err
	}
	logger := a.Logger().Named("crawl")

	pager, err := crawler.NewPagination(cfg.PaginationSettings())
	if err != nil {
		return fmt.Errorf("build pagination: %w", err)
	}
	extractor, err := crawler.NewExtraction(cfg.ExtractionSettings())
	if err != nil {
		return fmt.Errorf("build extraction: %w", err)
	}

	cps, err := openCheckpoints(cfg.Checkpoint, a.Blobs())
	if err != nil {
		return fmt.Errorf("open checkpoints: %w", err)
	}
	defer func() {
		if cerr := cps.Close(); cerr != nil {
			logger.Warn("failed to close checkpoints", zap.Error(cerr))
		}
	}()

	clock := system.New()
	opts := []crawler.Option{}
	if flags.resume {
		state, err := cps.resumeState(ctx, logger)
		if err != nil {
			return err
		}
		if state != nil {
			opts = append(opts, crawler.WithState(state))
		} else {
			logger.Info("no checkpoint found, starting fresh")
		}
	}

	client, release, err := openPageClient(ctx, cfg.Browser)
	if err != nil {
		return err
	}
	defer release()

	runID := uuid.NewRunID()
	ctx, span := telemetry.StartRun(ctx, string(store.KindCrawl), runID.String())
	defer span.End()

	hub, err := a.NewHub(ctx)
	if err != nil {
		return err
	}
	reporter := progress.NewReporter(hub, progress.UUIDToBytes(runID), clock)
	opts = append(opts, crawler.WithObserver(reporter))

	ctrl := crawler.NewController(cfg.CrawlerSettings(), client, pager, extractor, cps.saver, clock, logger, opts...)

	logger.Info("crawl starting",
		zap.String("run_id", runID.String()),
		zap.String("start_url", cfg.Crawler.StartURL),
		zap.String("pagination", pager.Name()),
		zap.String("extraction", extractor.Name()),
	)
	reporter.RunStarted(string(store.KindCrawl), cfg.Crawler.StartURL)

	var res crawler.Result
	serveCtx, stopServer := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error { return a.ServeStatus(gctx) })
	g.Go(func() error {
		defer stopServer()
		res = ctrl.Run(ctx)
		return nil
	})
	serveErr := g.Wait()
	stopServer()

	if err := writeProfileURLs(cfg.Crawler.OutputURLs, ctrl.State().Records()); err != nil {
		logger.Error("failed to write profile url list", zap.Error(err))
	}

	reporter.RunFinished(res.TotalCount, string(res.Reason), res.Err)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	cancel()

	a.Announce(ctx, publisher.NewCompletion(runID.String(), cfg.Crawler.StartURL, res, clock.Now()))

	logger.Info("crawl finished",
		zap.String("phase", string(res.Phase)),
		zap.String("reason", string(res.Reason)),
		zap.Int("pages", res.Pages),
		zap.Int("total", res.TotalCount),
	)
	if res.Err != nil {
		return fmt.Errorf("crawl failed: %w", res.Err)
	}
	if serveErr != nil {
		return serveErr
	}
	return nil
}

// writeProfileURLs writes the record URLs in page order. Records without a
// URL are skipped; nothing is written when path is empty.
func writeProfileURLs(path string, records []crawler.Record) error {
	if path == "" {
		return nil
	}
	urls := make([]string, 0, len(records))
	for _, r := range records {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return profile.WriteTargets(path, urls)
}
