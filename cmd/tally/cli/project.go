package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/service"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Create projects, list them, and set the origins allowed to submit events.",
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectDomainsCmd())

	return cmd
}

// splitDomains turns a comma separated flag into a domain list. An empty
// flag yields nil, which allows every origin.
func splitDomains(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// ---------- project create ----------

func newProjectCreateCmd() *cobra.Command {
	var (
		ownerEmail  string
		name        string
		description string
		domains     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project for an owner",
		Example: `  tally project create --owner me@example.com --name site --domains https://example.com
  tally project create --owner me@example.com --name internal  # allows every origin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectCreate(ownerEmail, name, description, splitDomains(domains))
		},
	}

	cmd.Flags().StringVar(&ownerEmail, "owner", "", "Owner email address (required)")
	cmd.Flags().StringVar(&name, "name", "", "Project name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	cmd.Flags().StringVar(&domains, "domains", "", "Comma separated allowed origins (default: *)")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runProjectCreate(ownerEmail, name, description string, domains []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	owner, err := store.GetOwnerByEmail(ctx, ownerEmail)
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("owner %q not found", ownerEmail)
	}
	if err != nil {
		return fmt.Errorf("lookup owner: %w", err)
	}

	p, err := service.NewProjectService(store, nil).Create(ctx, owner.ID, name, description, domains)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	fmt.Println("Project created:")
	fmt.Println()
	fmt.Printf("  ID:      %s\n", p.ID)
	fmt.Printf("  Name:    %s\n", p.Name)
	fmt.Printf("  Domains: %s\n", strings.Join(p.AllowedDomains, ", "))
	return nil
}

// ---------- project list ----------

func newProjectListCmd() *cobra.Command {
	var (
		ownerEmail string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectList(ownerEmail, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&ownerEmail, "owner", "", "Only list projects of this owner")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runProjectList(ownerEmail string, jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	var ownerID string
	if ownerEmail != "" {
		owner, err := store.GetOwnerByEmail(ctx, ownerEmail)
		if err != nil {
			return fmt.Errorf("lookup owner %q: %w", ownerEmail, err)
		}
		ownerID = owner.ID
	}

	projects, err := service.NewProjectService(store, nil).List(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, projects)
	}

	if len(projects) == 0 {
		fmt.Println("No projects configured. Use 'tally project create' to create one.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-40s\n", "ID", "NAME", "DOMAINS")
	fmt.Printf("%-38s %-20s %-40s\n", "--", "----", "-------")
	for _, p := range projects {
		fmt.Printf("%-38s %-20s %-40s\n", p.ID, p.Name, strings.Join(p.AllowedDomains, ","))
	}

	return nil
}

// ---------- project domains ----------

func newProjectDomainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains <project-id> <origin>[,<origin>...]",
		Short: "Replace the allowed origins of a project",
		Long:  "Replace the list of origins allowed to submit events. Use '*' to allow every origin.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectDomains(args[0], splitDomains(args[1]))
		},
	}

	return cmd
}

func runProjectDomains(projectID string, domains []string) error {
	if len(domains) == 0 {
		return fmt.Errorf("at least one origin is required")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := service.NewProjectService(store, nil).SetDomains(context.Background(), projectID, domains); err != nil {
		return fmt.Errorf("set domains: %w", err)
	}

	fmt.Printf("Project %s now allows: %s\n", projectID, strings.Join(domains, ", "))
	return nil
}
