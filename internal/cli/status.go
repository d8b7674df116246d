package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagedeck/usagedeck/internal/config"
	uderrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/monitor"
	"github.com/usagedeck/usagedeck/internal/provider"
	"github.com/usagedeck/usagedeck/internal/redact"
	"github.com/usagedeck/usagedeck/internal/usage"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st", "usage"},
	Short:   "One-shot usage fetch for configured providers",
	Long: `Fetch and display the current usage limits for every configured
provider. Without a configuration file, all known providers are tried.

Examples:
  # Show usage for every configured provider
  usagedeck status

  # Only one provider
  usagedeck status --provider claude

  # Force a specific source
  usagedeck status --provider claude --source web

  # Output as JSON
  usagedeck status --json | jq '.'`,
	RunE: runStatus,
}

var statusFlags struct {
	Provider string
	Source   string
	Timeout  time.Duration
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.Provider, "provider", "", "Fetch a single provider")
	statusCmd.Flags().StringVar(&statusFlags.Source, "source", "", "Force a source (oauth, cli, web)")
	statusCmd.Flags().DurationVar(&statusFlags.Timeout, "timeout", 60*time.Second, "Overall fetch deadline")

	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	providers, err := statusProviders()
	if err != nil {
		return err
	}

	if statusFlags.Source != "" {
		if !usage.Preference(statusFlags.Source).Valid() {
			return fmt.Errorf("source must be auto, oauth, cli or web; got %q", statusFlags.Source)
		}
		for i := range providers {
			providers[i].Source = statusFlags.Source
		}
	}

	redactor := redact.New()
	level := logging.LevelError
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(level),
		logging.WithRedactor(redactor),
	)

	store, err := openCredentialStore(redactor)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusFlags.Timeout)
	defer cancel()

	mon := monitor.New(newPlanner(store, logger), monitor.WithLogger(logger))
	results := mon.Sweep(ctx, providers)

	if globalFlags.JSON {
		return outputStatusJSON(results, redactor)
	}
	return outputStatusTable(results, redactor)
}

// statusProviders resolves which providers to fetch: the config's enabled
// set, narrowed by --provider; with no config file, every known provider.
func statusProviders() ([]config.ProviderConfig, error) {
	var providers []config.ProviderConfig

	cfg, err := config.NewLoader(globalFlags.Config).Load()
	switch {
	case err == nil:
		providers = cfg.EnabledProviders()
	case stderrors.As(err, new(*uderrors.ErrConfigNotFound)):
		for _, key := range provider.Keys() {
			providers = append(providers, config.ProviderConfig{Key: key})
		}
	default:
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if statusFlags.Provider == "" {
		return providers, nil
	}
	for _, pc := range providers {
		if pc.Key == statusFlags.Provider {
			return []config.ProviderConfig{pc}, nil
		}
	}
	if _, ok := provider.Lookup(statusFlags.Provider); ok {
		return []config.ProviderConfig{{Key: statusFlags.Provider}}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", statusFlags.Provider)
}

type statusRow struct {
	Provider string          `json:"provider"`
	Snapshot *usage.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func outputStatusJSON(results []monitor.Result, redactor *redact.Redactor) error {
	rows := make([]statusRow, 0, len(results))
	for _, res := range results {
		row := statusRow{Provider: res.Provider, Snapshot: res.Snapshot}
		if res.Err != nil {
			row.Error = redactor.RedactError(res.Err)
		}
		rows = append(rows, row)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

func outputStatusTable(results []monitor.Result, redactor *redact.Redactor) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tACCOUNT\tSOURCE\tWINDOW\tUSED\tRESETS IN")

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", res.Provider, redactor.RedactError(res.Err))
			continue
		}
		snap := res.Snapshot
		if snap == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\tno data\t-\n", res.Provider)
			continue
		}
		if len(snap.Windows) == 0 {
			fmt.Fprintf(w, "%s\t%s\t%s\t-\tno windows\t-\n",
				res.Provider, orDash(snap.AccountLabel), snap.Source)
			continue
		}
		for i, win := range snap.Windows {
			name, account, source := snap.ProviderKey, orDash(snap.AccountLabel), string(snap.Source)
			if i > 0 {
				name, account, source = "", "", ""
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				name, account, source, win.Label, formatUsed(win), formatResetsIn(win.ResetsAt))
		}
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatUsed(win usage.RateWindowState) string {
	if win.Limit <= 0 {
		return fmt.Sprintf("%.1f", win.Used)
	}
	return fmt.Sprintf("%.1f/%.0f (%.0f%%)", win.Used, win.Limit, win.Used/win.Limit*100)
}

func formatResetsIn(resetsAt time.Time) string {
	if resetsAt.IsZero() {
		return "-"
	}
	remaining := time.Until(resetsAt)
	if remaining <= 0 {
		return "now"
	}
	return remaining.Truncate(time.Minute).String()
}
