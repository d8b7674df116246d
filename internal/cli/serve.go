package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagedeck/usagedeck/internal/alerts"
	"github.com/usagedeck/usagedeck/internal/api"
	"github.com/usagedeck/usagedeck/internal/browser"
	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/credstore"
	"github.com/usagedeck/usagedeck/internal/fetchplan"
	"github.com/usagedeck/usagedeck/internal/history"
	"github.com/usagedeck/usagedeck/internal/httpx"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/monitor"
	"github.com/usagedeck/usagedeck/internal/redact"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Run the background monitor and status API",
	Long: `Start the UsageDeck server: a background monitor that sweeps every
configured provider on an interval, plus a local HTTP API serving the
latest normalized snapshots and Prometheus metrics.

Example:
  usagedeck serve --config config.yaml

The server listens on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", 0, "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}

	providers := cfg.EnabledProviders()
	if len(providers) == 0 {
		return fmt.Errorf("no providers configured; add a providers section to %s", globalFlags.Config)
	}

	redactor := redact.New()
	logger := logging.NewLogger(
		logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)),
		logging.WithRedactor(redactor),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openCredentialStore(redactor)
	if err != nil {
		return err
	}
	if newCount, updatedCount, importErr := credstore.NewImporter(store).ImportAll(); importErr != nil {
		logger.Warn("credential auto-import incomplete", "error", importErr.Error())
	} else if newCount > 0 || updatedCount > 0 {
		logger.Info("imported credentials from local assistant CLIs",
			"new", newCount, "updated", updatedCount)
	}
	if err := store.Watch(ctx, func(err error) {
		if err != nil {
			logger.Warn("credential store reload failed", "error", err.Error())
		}
	}); err != nil {
		logger.Warn("credential store watch unavailable", "error", err.Error())
	}

	m := metrics.NewMetrics("usagedeck")
	recordCredentialCounts(m, store)

	planner := newPlanner(store, logger)

	monitorOpts := []monitor.Option{
		monitor.WithMetrics(m),
		monitor.WithLogger(logger),
		monitor.WithConcurrency(cfg.Poll.Concurrency),
	}

	var hist *history.DB
	if cfg.History.Enabled {
		hist, err = history.New(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer func() {
			if err := hist.Close(); err != nil {
				logger.Warn("error closing history database", "error", err.Error())
			}
		}()
		monitorOpts = append(monitorOpts, monitor.WithRecorder(hist), monitor.WithPaceLoader(hist))
		startPruneLoop(ctx, hist, cfg.History.Retention, logger)
	}

	if cfg.Telegram.Enabled {
		sender, err := alerts.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("failed to set up telegram alerts: %w", err)
		}
		notifier := alerts.NewNotifier(sender, cfg.Telegram.Thresholds, cfg.Telegram.Cooldown,
			alerts.WithLogger(logger))
		monitorOpts = append(monitorOpts, monitor.WithOnResult(func(res monitor.Result) {
			if res.Snapshot != nil {
				notifier.ObserveSnapshot(res.Snapshot)
			}
		}))
	}

	mon := monitor.New(planner, monitorOpts...)
	mon.Start(ctx, cfg.Poll.Interval, providers)
	defer mon.Stop()

	server := api.NewServer(providers, mon, m, logger, redactor)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpSrv := api.NewHTTPServer(addr, server.Router())

	errChan := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	log.Printf("UsageDeck serving on %s (providers: %d, poll interval: %s)",
		addr, len(providers), cfg.Poll.Interval)

	sigChan := api.SetupSignalHandler()
	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	}

	cancel()
	if err := api.GracefulShutdown(httpSrv, cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	log.Println("Graceful shutdown completed")
	return nil
}

// openCredentialStore loads the store at the global flag path.
func openCredentialStore(redactor *redact.Redactor) (*credstore.Store, error) {
	store := credstore.New(globalFlags.Credentials, redactor)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load credential store: %w", err)
	}
	return store, nil
}

// newPlanner assembles the fetch planner with its live collaborators.
func newPlanner(store *credstore.Store, logger *logging.Logger) *fetchplan.Planner {
	return fetchplan.NewPlanner(
		fetchplan.WithCredentials(store),
		fetchplan.WithCookies(browser.NewExtractor(browser.NewChromiumDecryptor())),
		fetchplan.WithHTTP(httpx.New(httpx.Options{BrowserTLS: true})),
		fetchplan.WithRunner(fetchplan.ExecRunner{}),
		fetchplan.WithLogger(logger),
	)
}

func recordCredentialCounts(m *metrics.Metrics, store *credstore.Store) {
	for _, key := range store.Providers() {
		m.RecordCredentialRecords(key, len(store.Accounts(key)))
	}
}

// startPruneLoop drops history samples past the retention horizon, daily.
func startPruneLoop(ctx context.Context, hist *history.DB, retention time.Duration, logger *logging.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruned, err := hist.Prune(ctx, time.Now().Add(-retention))
				if err != nil {
					logger.Warn("history prune failed", "error", err.Error())
				} else if pruned > 0 {
					logger.Info("pruned history samples", "count", pruned)
				}
			}
		}
	}()
}
