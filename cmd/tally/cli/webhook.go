package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyhq/tally/internal/webhook"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Webhook utilities",
	}

	cmd.AddCommand(newWebhookSignCmd())

	return cmd
}

func newWebhookSignCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the signature header for a payload",
		Long:  "Sign a payload with webhook.secret and print the X-Hub-Signature header value. Reads stdin unless --file is set.",
		Example: `  echo '{"type":"ping"}' | tally webhook sign
  tally webhook sign --file payload.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebhookSign(cmd.InOrStdin(), cmd.OutOrStdout(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the payload from a file")

	return cmd
}

func runWebhookSign(stdin io.Reader, out io.Writer, file string) error {
	secret := viper.GetString("webhook.secret")
	if secret == "" {
		return fmt.Errorf("webhook.secret is not set")
	}

	var (
		body []byte
		err  error
	)
	if file != "" {
		body, err = os.ReadFile(file)
	} else {
		body, err = io.ReadAll(stdin)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	fmt.Fprintf(out, "%s: sha256=%s\n", webhook.SignatureHeader, webhook.Sign(body, secret))
	return nil
}
