package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config      string
	Credentials string
	Verbose     bool
	JSON        bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "usagedeck",
	Short: "UsageDeck - usage limits for AI coding assistants",
	Long: `UsageDeck acquires and normalizes usage-limit data for AI coding
assistant subscriptions (Claude, Codex, Gemini, Copilot, Cursor and
others) from whichever source is available: OAuth APIs, local CLI
tools, or web dashboard sessions.

Available Commands:
  status     One-shot usage fetch for configured providers
  serve      Run the background monitor and status API
  accounts   Manage stored credentials per provider
  doctor     Diagnose configuration and environment issues

Use "usagedeck [command] --help" for more information about a command.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv("USAGEDECK_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	credentialsPath := os.Getenv("USAGEDECK_CREDENTIALS_PATH")
	if credentialsPath == "" {
		credentialsPath = defaultCredentialsPath()
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.Credentials, "credentials", credentialsPath, "Path to credential store file")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.json"
	}
	return home + "/.usagedeck/credentials.json"
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of UsageDeck",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// printVersion prints the version information
func printVersion() {
	info := GetVersionInfo()
	println("UsageDeck Version:", info.Version)
	println("Go Version:", info.GoVersion)
	println("OS/Arch:", info.OS+"/"+info.Arch)
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
