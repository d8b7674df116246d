package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagedeck/usagedeck/internal/credstore"
	"github.com/usagedeck/usagedeck/internal/provider"
	"github.com/usagedeck/usagedeck/internal/redact"
)

// accountsCmd groups credential store management subcommands
var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account", "creds"},
	Short:   "Manage stored credentials per provider",
	Long: `List, add, remove and select credential records in the local store.

Each provider can hold multiple labelled accounts; one is active at a
time and is the default for fetches.

Examples:
  usagedeck accounts list
  usagedeck accounts add claude work --secret -
  usagedeck accounts use claude personal
  usagedeck accounts remove claude old`,
}

var accountsAddFlags struct {
	Secret    string
	Kind      string
	ExpiresIn time.Duration
}

var accountsListFlags struct {
	Provider string
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential records",
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <provider> <label>",
	Short: "Add or replace a credential record",
	Long: `Add a credential record for a provider under a label. The secret is
taken from --secret; pass "-" to read it from stdin so it never appears
in shell history.`,
	Args: cobra.ExactArgs(2),
	RunE: runAccountsAdd,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <provider> <label>",
	Short: "Remove a credential record",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountsRemove,
}

var accountsUseCmd = &cobra.Command{
	Use:   "use <provider> <label>",
	Short: "Select the active account for a provider",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountsUse,
}

var accountsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tokens from locally installed assistant CLIs",
	Long: `Scan the auth files written by locally installed assistant CLIs
(claude, codex, gemini, qwen) and mirror their OAuth tokens into the
credential store under the "imported" label.`,
	RunE: runAccountsImport,
}

func init() {
	accountsListCmd.Flags().StringVar(&accountsListFlags.Provider, "provider", "", "Filter by provider")

	accountsAddCmd.Flags().StringVar(&accountsAddFlags.Secret, "secret", "", `Secret value ("-" reads from stdin)`)
	accountsAddCmd.Flags().StringVar(&accountsAddFlags.Kind, "kind", string(credstore.KindToken), "Credential kind (token, cookie, api-key)")
	accountsAddCmd.Flags().DurationVar(&accountsAddFlags.ExpiresIn, "expires-in", 0, "Optional lifetime after which the record is expired")

	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsRemoveCmd, accountsUseCmd, accountsImportCmd)
	RootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	store, err := openCredentialStore(redact.New())
	if err != nil {
		return err
	}

	type accountInfo struct {
		Provider   string     `json:"provider"`
		Label      string     `json:"label"`
		Kind       string     `json:"kind"`
		Active     bool       `json:"active"`
		ObtainedAt time.Time  `json:"obtained_at"`
		ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	}

	var infos []accountInfo
	for _, key := range sortedProviders(store) {
		if accountsListFlags.Provider != "" && key != accountsListFlags.Provider {
			continue
		}
		active, _ := store.Active(key)
		for _, label := range store.Accounts(key) {
			rec, ok := store.Get(key, label)
			if !ok {
				continue
			}
			infos = append(infos, accountInfo{
				Provider:   key,
				Label:      label,
				Kind:       string(rec.Kind),
				Active:     label == active.Label,
				ObtainedAt: rec.ObtainedAt,
				ExpiresAt:  rec.ExpiresAt,
			})
		}
	}

	if globalFlags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No credential records stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tLABEL\tKIND\tACTIVE\tOBTAINED\tEXPIRES")
	for _, info := range infos {
		activeStr := ""
		if info.Active {
			activeStr = "*"
		}
		expiresStr := "-"
		if info.ExpiresAt != nil {
			expiresStr = info.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Provider, info.Label, info.Kind, activeStr,
			info.ObtainedAt.Format(time.RFC3339), expiresStr)
	}
	return w.Flush()
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	providerKey, label := args[0], args[1]
	if _, ok := provider.Lookup(providerKey); !ok {
		return fmt.Errorf("unknown provider %q", providerKey)
	}

	kind := credstore.Kind(accountsAddFlags.Kind)
	switch kind {
	case credstore.KindToken, credstore.KindCookie, credstore.KindAPIKey:
	default:
		return fmt.Errorf("kind must be token, cookie or api-key; got %q", accountsAddFlags.Kind)
	}

	secret, err := resolveSecret(accountsAddFlags.Secret)
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("a secret is required; pass --secret or --secret -")
	}

	store, err := openCredentialStore(redact.New())
	if err != nil {
		return err
	}

	rec := credstore.Record{
		Provider: providerKey,
		Label:    label,
		Kind:     kind,
		Secret:   secret,
	}
	if accountsAddFlags.ExpiresIn > 0 {
		expires := time.Now().UTC().Add(accountsAddFlags.ExpiresIn)
		rec.ExpiresAt = &expires
	}

	if err := store.Upsert(rec); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	fmt.Printf("Stored %s credential for %s as %q\n", kind, providerKey, label)
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	store, err := openCredentialStore(redact.New())
	if err != nil {
		return err
	}
	if err := store.Remove(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Removed %s account %q\n", args[0], args[1])
	return nil
}

func runAccountsImport(cmd *cobra.Command, args []string) error {
	store, err := openCredentialStore(redact.New())
	if err != nil {
		return err
	}
	newCount, updatedCount, err := credstore.NewImporter(store).ImportAll()
	if err != nil {
		return fmt.Errorf("import finished with errors: %w", err)
	}
	fmt.Printf("Imported %d new, %d updated credential(s)\n", newCount, updatedCount)
	return nil
}

func runAccountsUse(cmd *cobra.Command, args []string) error {
	store, err := openCredentialStore(redact.New())
	if err != nil {
		return err
	}
	if err := store.SelectActive(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Selected %s account %q\n", args[0], args[1])
	return nil
}

// resolveSecret reads the secret from the flag value or, for "-", stdin.
func resolveSecret(value string) (string, error) {
	if value != "-" {
		return strings.TrimSpace(value), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func sortedProviders(store *credstore.Store) []string {
	keys := store.Providers()
	sort.Strings(keys)
	return keys
}
