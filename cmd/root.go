// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/app"
	"github.com/JakeFAU/profile-harvester/internal/config"
	"github.com/JakeFAU/profile-harvester/internal/logging"
	"github.com/JakeFAU/profile-harvester/internal/telemetry"
)

const serviceName = "profile-harvester"

// appKeyType is the key for storing the session in the context.
type appKeyType string

const appKey appKeyType = "app"

// session is what every subcommand receives from the root command.
type session struct {
	app    *app.App
	tracer *sdktrace.TracerProvider
}

// newApp is the application factory. It is a variable so tests can inject
// in-memory services.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.NewApp(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Collects profile listings, screenshots them and embeds the results.",
		Long: `harvester crawls a paginated people listing into a deduplicated record
set, screenshots and analyzes each discovered profile, and uploads text
embeddings of the results to a vector store.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := logging.New(cfg.LoggingOptions())
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			tp, err := telemetry.InitTracerProvider(cmd.Context(), serviceName)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = tp.Shutdown(cmd.Context())
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &session{app: a, tracer: tp}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			s, ok := cmd.Context().Value(appKey).(*session)
			if !ok || s == nil {
				return
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
			defer cancel()
			if err := s.tracer.Shutdown(shutdownCtx); err != nil {
				s.app.Logger().Warn("tracer shutdown failed", zap.Error(err))
			}
			s.app.Close()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd(), newProfilesCmd(), newEmbedCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	s, ok := ctx.Value(appKey).(*session)
	if !ok || s == nil || s.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return s.app, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command, which then flushes its state before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "harvester:", err)
		os.Exit(1)
	}
}
