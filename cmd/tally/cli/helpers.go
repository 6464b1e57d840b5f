package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/credential"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/token"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TALLY_DATA_DIR env var, or ~/.tally as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TALLY_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tally")
}

// openStore opens the store selected by store.driver. SQLite without a DSN
// lives in the data directory.
func openStore() (*config.Store, error) {
	driver := viper.GetString("store.driver")
	dsn := viper.GetString("store.dsn")
	if (driver == "" || driver == config.DriverSQLite) && dsn == "" {
		return config.NewStore(resolveDataDir())
	}
	return config.Open(driver, dsn)
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(w io.Writer, dev bool) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newKeyManager wires a KeyManager for one-shot CLI use. It has no cache, so
// a running server sees CLI revocations once its own cache entry expires.
func newKeyManager(store *config.Store, logger *slog.Logger) *service.KeyManager {
	codec := token.NewCodec(viper.GetDuration("token.ttl"), nil)
	return service.NewKeyManager(store, credential.NewHasher(credential.DefaultCost), codec, nil, nil, logger)
}

// parseSize accepts human readable sizes such as "1MB" or "512KiB".
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// readSecret prompts on the terminal without echoing input.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
