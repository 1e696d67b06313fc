package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sfp/internal/apiserver"
	"sfp/internal/notify"
	"sfp/internal/pool"
	"sfp/internal/svcconfig"
)

func newServeCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sfp HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			homeFlag, _ := cmd.Flags().GetString("home")
			configType, _ := cmd.Flags().GetString("config-type")
			backend, _ := cmd.Flags().GetString("backend")
			redisAddr, _ := cmd.Flags().GetString("redis-addr")

			addr, _ := cmd.Flags().GetString("addr")
			noAuth, _ := cmd.Flags().GetBool("no-auth")
			jwtSecret, _ := cmd.Flags().GetString("jwt-secret")
			if jwtSecret == "" {
				jwtSecret = os.Getenv("SFP_JWT_SECRET")
			}
			tokenDuration, _ := cmd.Flags().GetDuration("token-duration")
			certFile, _ := cmd.Flags().GetString("cert-file")
			keyFile, _ := cmd.Flags().GetString("key-file")

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, logger, serveOptions{
				homeFlag:      homeFlag,
				configType:    configType,
				backend:       backend,
				redisAddr:     redisAddr,
				addr:          addr,
				noAuth:        noAuth,
				jwtSecret:     jwtSecret,
				tokenDuration: tokenDuration,
				certFile:      certFile,
				keyFile:       keyFile,
			})
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address (host:port)")
	cmd.Flags().Bool("no-auth", false, "disable authentication (all requests treated as admin)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for issuing/verifying bearer tokens (or SFP_JWT_SECRET env)")
	cmd.Flags().Duration("token-duration", 24*time.Hour, "bearer token lifetime")
	cmd.Flags().String("cert-file", "", "TLS certificate file (enables HTTPS)")
	cmd.Flags().String("key-file", "", "TLS key file (enables HTTPS)")

	return cmd
}

type serveOptions struct {
	homeFlag, configType, backend, redisAddr string
	addr                                     string
	noAuth                                   bool
	jwtSecret                                string
	tokenDuration                            time.Duration
	certFile, keyFile                        string
}

func runServe(ctx context.Context, logger *slog.Logger, opts serveOptions) error {
	hd, err := resolveHome(opts.homeFlag)
	if err != nil {
		return err
	}
	if opts.configType != "memory" {
		if err := hd.EnsureExists(); err != nil {
			return err
		}
	}

	cfgStore, err := openConfigStore(hd, opts.configType)
	if err != nil {
		return err
	}

	bm, registry, err := openBackend(opts.backend, opts.redisAddr)
	if err != nil {
		return err
	}

	tokens, err := buildTokenService(opts.jwtSecret, opts.tokenDuration, opts.noAuth)
	if err != nil {
		return err
	}

	certMgr, err := loadCertManager(logger, opts.certFile, opts.keyFile)
	if err != nil {
		return err
	}
	var apiCerts apiserver.CertManager
	if certMgr != nil {
		apiCerts = certMgr
	}

	p := pool.New(pool.Config{
		Bitmap:   bm,
		Registry: registry,
		Settings: &svcconfig.SettingsSource{Store: cfgStore},
		Notify:   notify.NewSignal(),
		Logger:   logger,
	})

	srv := apiserver.New(apiserver.Config{
		Pool:        p,
		Config:      cfgStore,
		Tokens:      tokens,
		NoAuth:      opts.noAuth,
		CertManager: apiCerts,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ServeTCP(opts.addr) })

	<-gctx.Done()
	logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		return err
	}
	return g.Wait()
}
