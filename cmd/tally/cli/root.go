package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyhq/tally/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, printed by serve
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Credential-gated event ingestion and analytics",
		Long: `Tally: issue API keys to your projects, exchange them for short-lived tokens,
and ingest analytics events from the browser origins you allow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tally.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.tally)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newOwnerCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newWebhookCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	setDefaults(config.DefaultYAMLConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tally")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.tally")
	}

	viper.SetEnvPrefix("TALLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

// setDefaults registers every known key so AutomaticEnv can resolve it and
// config show lists it even without a config file.
func setDefaults(d *config.YAMLConfig) {
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	viper.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	viper.SetDefault("store.driver", d.Store.Driver)
	viper.SetDefault("store.dsn", d.Store.DSN)
	viper.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	viper.SetDefault("auth.session_ttl", d.Auth.SessionTTL)
	viper.SetDefault("token.ttl", d.Token.TTL)
	viper.SetDefault("ingest.rate_limit", d.Ingest.RateLimit)
	viper.SetDefault("ingest.window", d.Ingest.Window)
	viper.SetDefault("exchange.rate_limit", d.Exchange.RateLimit)
	viper.SetDefault("webhook.secret", d.Webhook.Secret)
	viper.SetDefault("cache.ttl", d.Cache.TTL)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}
