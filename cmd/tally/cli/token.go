package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with access tokens",
	}

	cmd.AddCommand(newTokenExchangeCmd())

	return cmd
}

func newTokenExchangeCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "exchange <public-key>",
		Short: "Exchange an API key and secret for an access token",
		Long:  "Perform a token exchange against the local store. The secret is prompted for when --secret is omitted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenExchange(args[0], secret)
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "API key secret (prompted if omitted)")

	return cmd
}

func runTokenExchange(publicKey, secret string) error {
	if secret == "" {
		var err error
		if secret, err = readSecret("Secret: "); err != nil {
			return err
		}
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	issued, err := newKeyManager(store, newLogger(os.Stderr, false)).Exchange(context.Background(), publicKey, secret)
	if err != nil {
		return fmt.Errorf("exchange: %w", err)
	}

	fmt.Println(issued.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", issued.ExpiresAt.Format(time.RFC3339))
	return nil
}
