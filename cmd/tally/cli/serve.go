package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coder/quartz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyhq/tally/internal/credential"
	"github.com/tallyhq/tally/internal/ratelimit"
	"github.com/tallyhq/tally/internal/server"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/token"
)

const banner = `
 _____  _    _     _  __   __
|_   _|/ \  | |   | | \ \ / /
  | | / _ \ | |   | |  \ V /
  | |/ ___ \| |___| |___| |
  |_/_/   \_\_____|_____|_|
`

const devJWTSecret = "tally-dev-secret-change-me"

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tally API server",
		Long:  "Start the HTTP server for token exchange, event ingestion and the owner API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, fallback JWT secret)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(os.Stderr, dev)

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		if !dev {
			return fmt.Errorf("auth.jwt_secret is required (set TALLY_AUTH_JWT_SECRET or use --dev)")
		}
		logger.Warn("auth.jwt_secret not set, using development secret")
		jwtSecret = devJWTSecret
	}

	maxBody, err := parseSize(viper.GetString("server.max_body_size"))
	if err != nil {
		return fmt.Errorf("server.max_body_size: %w", err)
	}

	// 1. Open the store
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()
	logger.Info("store initialized", "driver", store.Driver())

	// 2. Hot-path caches and shared clock
	clock := quartz.NewReal()
	cache, err := service.NewCache(viper.GetDuration("cache.ttl"))
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cache.Close()

	codec := token.NewCodec(viper.GetDuration("token.ttl"), clock)
	window := viper.GetDuration("ingest.window")
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	limiter := ratelimit.NewFixedWindow(viper.GetInt("ingest.rate_limit"), window, clock)

	// 3. Services
	svc := server.Services{
		Auth:     service.NewAuthService(store, jwtSecret, viper.GetDuration("auth.session_ttl"), clock),
		Projects: service.NewProjectService(store, cache),
		Keys:     service.NewKeyManager(store, credential.NewHasher(credential.DefaultCost), codec, cache, clock, logger),
		Gate:     service.NewGate(store, codec, limiter, cache, clock, logger),
		Events:   service.NewEventService(store, clock),
	}

	if owners, err := store.ListOwners(context.Background()); err == nil && len(owners) == 0 {
		logger.Warn("no owner account found - run: tally owner create")
	}

	if viper.GetString("webhook.secret") == "" {
		logger.Warn("webhook.secret not set, all webhook deliveries will be rejected")
	}

	// 4. Build and start HTTP server
	srvCfg := server.Config{
		Host:              viper.GetString("server.host"),
		Port:              viper.GetInt("server.port"),
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       viper.GetStringSlice("server.cors_origins"),
		MaxBodySize:       maxBody,
		ExchangeRateLimit: viper.GetInt("exchange.rate_limit"),
		IngestWindow:      window,
		WebhookSecret:     viper.GetString("webhook.secret"),
	}

	srv := server.New(srvCfg, store, svc, logger)

	fmt.Printf("→ Tally %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Ingest:     http://%s:%d/api/v1/track\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
