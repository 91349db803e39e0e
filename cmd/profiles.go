package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/browser"
	"github.com/JakeFAU/profile-harvester/internal/clock/system"
	"github.com/JakeFAU/profile-harvester/internal/dispatcher"
	"github.com/JakeFAU/profile-harvester/internal/id/uuid"
	"github.com/JakeFAU/profile-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/profile-harvester/internal/profile"
	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/queue/memory"
	"github.com/JakeFAU/profile-harvester/internal/store"
	"github.com/JakeFAU/profile-harvester/internal/telemetry"
	"github.com/JakeFAU/profile-harvester/internal/vision"
	"github.com/JakeFAU/profile-harvester/internal/worker"
)

// screenshotPrefix roots archived screenshots inside the blob store.
const screenshotPrefix = "screenshots"

// newProfilesCmd creates the 'profiles' subcommand, which screenshots every
// discovered profile and extracts a structured summary from the images.
func newProfilesCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Screenshots and analyzes every profile in the URL list",
		Long: `Reads the profile URL list written by 'crawl', captures each page one
viewport at a time with a pool of browser tabs, asks the vision model for a
structured summary and appends it to the profiles output file. URLs already
present in the output are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProfilesCommand(cmd.Context(), workers)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "override profiles.workers")
	return cmd
}

func runProfilesCommand(ctx context.Context, workers int) error {
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config()
	if workers > 0 {
		cfg.Profiles.Workers = workers
	}
	if err := cfg.RequireProfiles(); err != nil {
		return err
	}
	logger := a.Logger().Named("profiles")

	output, err := profile.NewOutputFile(cfg.Profiles.Output)
	if err != nil {
		return fmt.Errorf("open profiles output: %w", err)
	}
	targets, err := pendingTargets(cfg.Profiles.Input, output)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		logger.Info("no pending profiles", zap.String("input", cfg.Profiles.Input))
		return nil
	}

	analyzer, err := vision.New(vision.Config{
		BaseURL:   cfg.Vision.BaseURL,
		APIKey:    cfg.Vision.APIKey,
		Model:     cfg.Vision.Model,
		MaxTokens: cfg.Vision.MaxTokens,
		Timeout:   cfg.Vision.Timeout,
	}, nil)
	if err != nil {
		return err
	}

	chrome, err := browser.NewChrome(browserConfig(cfg.Browser))
	if err != nil {
		return fmt.Errorf("start chrome: %w", err)
	}
	defer chrome.Close()

	runID := uuid.NewRunID()
	ctx, span := telemetry.StartRun(ctx, string(store.KindProfiles), runID.String())
	defer span.End()

	hub, err := a.NewHub(ctx)
	if err != nil {
		return err
	}
	clock := system.New()
	reporter := progress.NewReporter(hub, progress.UUIDToBytes(runID), clock)

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Profiles.RequestsPerSecond, DefaultBurst: 1})
	queue := memory.NewQueue(cfg.Profiles.Workers * 2)
	opts := []worker.Option{worker.WithLimiter(limiter), worker.WithObserver(reporter)}
	if cfg.Profiles.Archive {
		opts = append(opts, worker.WithBlobStore(a.Blobs()))
	}

	runners := make([]dispatcher.Runner, 0, cfg.Profiles.Workers)
	tabs := make([]*browser.Tab, 0, cfg.Profiles.Workers)
	defer func() {
		for _, tab := range tabs {
			tab.Close()
		}
	}()
	for i := 1; i <= cfg.Profiles.Workers; i++ {
		tab, err := chrome.NewTab(ctx)
		if err != nil {
			return fmt.Errorf("open tab for worker %d: %w", i, err)
		}
		tabs = append(tabs, tab)
		runners = append(runners, worker.New(queue, tab, analyzer, output, worker.Config{
			ID:    i,
			RunID: runID.String(),
			Capture: profile.CaptureConfig{
				SettleDelay: cfg.Profiles.SettleDelay,
				ScrollDelay: cfg.Profiles.ScrollDelay,
				MaxShots:    cfg.Profiles.MaxShots,
			},
			ArchivePrefix: screenshotPrefix,
		}, logger, opts...))
	}

	logger.Info("profile capture starting",
		zap.String("run_id", runID.String()),
		zap.Int("targets", len(targets)),
		zap.Int("workers", len(runners)),
	)
	reporter.RunStarted(string(store.KindProfiles), cfg.Profiles.Input)
	runErr := dispatcher.New(queue, runners).Run(ctx, targets)

	stored, loadErr := output.Load()
	if loadErr != nil {
		logger.Warn("failed to count stored profiles", zap.Error(loadErr))
	}
	reporter.RunFinished(len(stored), "", runErr)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	cancel()

	logger.Info("profile capture finished", zap.Int("profiles_total", len(stored)))
	if runErr != nil {
		return fmt.Errorf("profile capture: %w", runErr)
	}
	return nil
}

// pendingTargets reads the URL list and drops profiles already stored in
// output.
func pendingTargets(input string, output *profile.OutputFile) ([]profile.Target, error) {
	targets, err := profile.ReadTargets(input)
	if err != nil {
		return nil, err
	}
	done, err := output.Load()
	if err != nil {
		return nil, fmt.Errorf("load stored profiles: %w", err)
	}
	seen := make(map[string]struct{}, len(done))
	for _, p := range done {
		seen[p.URL] = struct{}{}
	}
	pending := targets[:0]
	for _, t := range targets {
		if _, ok := seen[t.URL]; ok {
			continue
		}
		seen[t.URL] = struct{}{}
		pending = append(pending, t)
	}
	return pending, nil
}
