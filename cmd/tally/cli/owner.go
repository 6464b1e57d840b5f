package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyhq/tally/internal/service"
)

func newOwnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage owner accounts",
		Long:  "Create and list the accounts that own projects and sign in to the owner API.",
	}

	cmd.AddCommand(newOwnerCreateCmd())
	cmd.AddCommand(newOwnerListCmd())

	return cmd
}

// ---------- owner create ----------

func newOwnerCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new owner account",
		Example: `  tally owner create --email me@example.com --password secret123
  tally owner create --email me@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOwnerCreate(email, password, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Owner email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Owner password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Owner display name")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runOwnerCreate(email, password, name string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	if password == "" {
		var err error
		if password, err = readSecret("Password: "); err != nil {
			return err
		}
		confirm, err := readSecret("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	auth := service.NewAuthService(store, viper.GetString("auth.jwt_secret"), 0, nil)
	owner, err := auth.CreateOwner(context.Background(), email, name, password)
	if err != nil {
		return fmt.Errorf("create owner: %w", err)
	}

	fmt.Printf("Created owner %q (id %s)\n", owner.Email, owner.ID)
	return nil
}

// ---------- owner list ----------

func newOwnerListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all owner accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOwnerList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runOwnerList(jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	owners, err := store.ListOwners(context.Background())
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, owners)
	}

	if len(owners) == 0 {
		fmt.Println("No owners configured. Use 'tally owner create' to create one.")
		return nil
	}

	fmt.Printf("%-38s %-30s %-20s %-20s\n", "ID", "EMAIL", "NAME", "LAST LOGIN")
	fmt.Printf("%-38s %-30s %-20s %-20s\n", "--", "-----", "----", "----------")
	for _, o := range owners {
		last := "never"
		if o.LastLoginAt != nil {
			last = o.LastLoginAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-38s %-30s %-20s %-20s\n", o.ID, o.Email, o.Name, last)
	}

	return nil
}
