package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagedeck/usagedeck/internal/browser"
	"github.com/usagedeck/usagedeck/internal/config"
	uderrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/provider"
	"github.com/usagedeck/usagedeck/internal/redact"
	"github.com/usagedeck/usagedeck/internal/usage"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and environment issues",
	Long: `Perform a diagnostic pass over the UsageDeck environment.

This command checks:
- Configuration file presence and validity
- Credential store readability and record expiry
- Provider CLI tools available on PATH
- Browser cookie stores discoverable for web sources

Example:
  usagedeck doctor`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Checks    []DoctorCheck `json:"checks"`
}

// SystemInfo contains system information
type SystemInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

const (
	checkOK      = "OK"
	checkWarning = "WARNING"
	checkError   = "ERROR"
)

func runDoctor(cmd *cobra.Command, args []string) error {
	report := DoctorReport{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
		},
	}

	report.Checks = append(report.Checks, checkConfiguration()...)
	report.Checks = append(report.Checks, checkCredentialStore()...)
	report.Checks = append(report.Checks, checkProviderCLIs()...)
	report.Checks = append(report.Checks, checkBrowserStores()...)

	if globalFlags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return outputDoctorTable(report)
}

func checkConfiguration() []DoctorCheck {
	cfg, err := config.NewLoader(globalFlags.Config).Load()
	switch {
	case err == nil:
		return []DoctorCheck{{
			Category: "Config",
			Name:     globalFlags.Config,
			Status:   checkOK,
			Message:  fmt.Sprintf("%d providers configured", len(cfg.EnabledProviders())),
		}}
	case stderrors.As(err, new(*uderrors.ErrConfigNotFound)):
		return []DoctorCheck{{
			Category: "Config",
			Name:     globalFlags.Config,
			Status:   checkWarning,
			Message:  "not found; status falls back to all known providers",
		}}
	default:
		return []DoctorCheck{{
			Category: "Config",
			Name:     globalFlags.Config,
			Status:   checkError,
			Message:  err.Error(),
		}}
	}
}

func checkCredentialStore() []DoctorCheck {
	store, err := openCredentialStore(redact.New())
	if err != nil {
		return []DoctorCheck{{
			Category: "Credentials",
			Name:     globalFlags.Credentials,
			Status:   checkError,
			Message:  err.Error(),
		}}
	}

	checks := []DoctorCheck{{
		Category: "Credentials",
		Name:     globalFlags.Credentials,
		Status:   checkOK,
		Message:  fmt.Sprintf("%d providers with records", len(store.Providers())),
	}}

	now := time.Now()
	for _, key := range sortedProviders(store) {
		for _, label := range store.Accounts(key) {
			rec, ok := store.Get(key, label)
			if ok && rec.Expired(now) {
				checks = append(checks, DoctorCheck{
					Category: "Credentials",
					Name:     key + "/" + label,
					Status:   checkWarning,
					Message:  "record is expired; re-authenticate",
				})
			}
		}
	}
	return checks
}

// checkProviderCLIs looks up each provider's reporting binary on PATH.
func checkProviderCLIs() []DoctorCheck {
	var checks []DoctorCheck
	for _, p := range provider.All() {
		req, err := p.BuildRequest(usage.SourceCli, provider.Credentials{})
		if err != nil {
			continue // provider has no cli source
		}
		check := DoctorCheck{Category: "CLI tools", Name: req.Binary}
		if _, err := exec.LookPath(req.Binary); err != nil {
			check.Status = checkWarning
			check.Message = fmt.Sprintf("not on PATH; %s cli source unavailable", p.Identity().Key)
		} else {
			check.Status = checkOK
		}
		checks = append(checks, check)
	}
	return checks
}

func checkBrowserStores() []DoctorCheck {
	extractor := browser.NewExtractor(browser.NewChromiumDecryptor())
	var checks []DoctorCheck
	for _, b := range browser.Known {
		check := DoctorCheck{Category: "Browsers", Name: string(b)}
		if path, ok := extractor.StorePath(b); ok {
			check.Status = checkOK
			check.Message = path
		} else {
			check.Status = checkWarning
			check.Message = "no cookie store found"
		}
		checks = append(checks, check)
	}
	return checks
}

func outputDoctorTable(report DoctorReport) error {
	fmt.Printf("UsageDeck doctor — %s/%s, %s\n\n",
		report.System.OS, report.System.Arch, report.System.GoVersion)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCHECK\tSTATUS\tDETAIL")
	for _, check := range report.Checks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", check.Category, check.Name, check.Status, check.Message)
	}
	return w.Flush()
}
