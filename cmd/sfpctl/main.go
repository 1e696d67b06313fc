// Command sfpctl runs the sfp set-membership service and provides a CLI for
// driving it, grounded on the teacher's cmd/gastrolog wiring: a cobra root
// command with persistent --home/--backend flags, a base slog logger built
// once in main and threaded through every component via dependency
// injection (no global slog configuration), and a "serve" subcommand that
// builds the bitmap/registry/config stores, pool, auth tokens, and
// certificate manager before handing off to apiserver.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sfp/internal/auth"
	"sfp/internal/bitmap"
	"sfp/internal/bitmap/memstore"
	"sfp/internal/bitmap/redisbitmap"
	"sfp/internal/cert"
	"sfp/internal/filterinfo"
	"sfp/internal/filterinfo/memregistry"
	"sfp/internal/filterinfo/redisregistry"
	"sfp/internal/home"
	"sfp/internal/logging"
	"sfp/internal/svcconfig"
	svcconfigmemory "sfp/internal/svcconfig/memory"
	svcconfigsqlite "sfp/internal/svcconfig/sqlite"

	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "sfpctl",
		Short: "Scalable set-membership (Bloom filter) service",
	}
	rootCmd.PersistentFlags().String("home", "", "home directory (default: platform config dir)")
	rootCmd.PersistentFlags().String("config-type", "sqlite", "AppConfig store type: sqlite or memory")
	rootCmd.PersistentFlags().String("backend", "memory", "bitmap/registry backend: memory or redis")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "redis address (backend=redis)")

	rootCmd.AddCommand(
		newServeCmd(logger),
		newREPLCmd(logger),
		newClientCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// resolveHome returns a Dir from the flag value, or the platform default.
func resolveHome(flagValue string) (home.Dir, error) {
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	return home.Default()
}

// openConfigStore creates a svcconfig.Store based on config type and home
// directory.
func openConfigStore(hd home.Dir, configType string) (svcconfig.Store, error) {
	switch configType {
	case "memory":
		return svcconfigmemory.New(), nil
	case "sqlite":
		return svcconfigsqlite.NewStore(hd.ConfigPath())
	default:
		return nil, fmt.Errorf("unknown config store type: %q", configType)
	}
}

// openBackend creates the bitmap.Store and filterinfo.Registry for the
// chosen backend.
func openBackend(backend, redisAddr string) (bitmap.Store, filterinfo.Registry, error) {
	switch backend {
	case "memory":
		return memstore.New(), memregistry.New(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return redisbitmap.New(client), redisregistry.New(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// buildTokenService builds an HMAC TokenService from a secret and duration.
// noAuth bypasses the token service entirely (nil, nil).
func buildTokenService(secret string, duration time.Duration, noAuth bool) (*auth.TokenService, error) {
	if noAuth {
		return nil, nil
	}
	if secret == "" {
		return nil, fmt.Errorf("--jwt-secret is required unless --no-auth is set")
	}
	return auth.NewTokenService([]byte(secret), duration), nil
}

// loadCertManager builds a cert.Manager from optional cert/key file paths.
// Returns nil when no certificate is configured (plain HTTP).
func loadCertManager(logger *slog.Logger, certFile, keyFile string) (*cert.Manager, error) {
	if certFile == "" || keyFile == "" {
		return nil, nil
	}
	mgr := cert.New(cert.Config{Logger: logger})
	if err := mgr.LoadFromConfig("server", map[string]cert.CertSource{
		"server": {CertFile: certFile, KeyFile: keyFile},
	}); err != nil {
		return nil, fmt.Errorf("load certs: %w", err)
	}
	mgr.SetDefault("server")
	return mgr, nil
}
