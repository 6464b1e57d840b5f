package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage project API keys",
		Long:    "Create, list, rotate and revoke the API keys a project exchanges for access tokens.",
	}

	cmd.PersistentFlags().String("project", "", "Project ID (required)")
	cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

func projectFlag(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("project")
	return p
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a public key and secret for a project. The secret is shown once and cannot be retrieved again.",
		Example: `  tally key create --project 0190... --name "marketing site"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(projectFlag(cmd), name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key")

	return cmd
}

func runKeyCreate(projectID, name string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.GetProject(ctx, projectID); err != nil {
		return fmt.Errorf("project %q: %w", projectID, err)
	}

	created, err := newKeyManager(store, newLogger(os.Stderr, false)).Create(ctx, projectID, name)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  ID:     %s\n", created.ID)
	fmt.Printf("  Key:    %s\n", created.Key)
	fmt.Printf("  Secret: %s\n", created.Secret)
	if name != "" {
		fmt.Printf("  Name:   %s\n", name)
	}
	fmt.Println()
	fmt.Println("  Save the secret now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the API keys of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(projectFlag(cmd), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(projectID string, jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	keys, err := newKeyManager(store, newLogger(os.Stderr, false)).List(context.Background(), projectID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys for this project. Use 'tally key create' to create one.")
		return nil
	}

	fmt.Printf("%-38s %-18s %-24s %-8s\n", "ID", "KEY", "NAME", "ACTIVE")
	fmt.Printf("%-38s %-18s %-24s %-8s\n", "--", "---", "----", "------")
	for _, k := range keys {
		active := "yes"
		if k.Revoked {
			active = "no"
		}
		fmt.Printf("%-38s %-18s %-24s %-8s\n", k.ID, k.Key, k.Name, active)
	}

	return nil
}

// ---------- key rotate ----------

func newKeyRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Replace the public key and secret of an API key",
		Long:  "Issue new credentials for an active key. Tokens obtained with the old secret stop working.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRotate(projectFlag(cmd), args[0])
		},
	}

	return cmd
}

func runKeyRotate(projectID, keyID string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	rotated, err := newKeyManager(store, newLogger(os.Stderr, false)).Rotate(context.Background(), projectID, keyID)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}

	fmt.Println("API Key rotated:")
	fmt.Println()
	fmt.Printf("  ID:     %s\n", rotated.ID)
	fmt.Printf("  Key:    %s\n", rotated.Key)
	fmt.Printf("  Secret: %s\n", rotated.Secret)
	fmt.Println()
	fmt.Println("  Save the secret now - it cannot be retrieved again.")
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Permanently disable an API key. Its tokens are rejected from then on.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(projectFlag(cmd), args[0])
		},
	}

	return cmd
}

func runKeyRevoke(projectID, keyID string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := newKeyManager(store, newLogger(os.Stderr, false)).Revoke(context.Background(), projectID, keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %s\n", keyID)
	return nil
}
