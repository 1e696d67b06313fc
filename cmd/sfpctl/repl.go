package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sfp/internal/notify"
	"sfp/internal/pool"
	"sfp/internal/replshell"
	"sfp/internal/svcconfig"
)

func newREPLCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL against an embedded, in-process pool",
		Long: "Boots the same bitmap/registry/config stores as \"serve\", but without " +
			"an HTTP listener, and drives them directly from an interactive shell. " +
			"Useful for local debugging: nothing in this mode is reachable from " +
			"another process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			homeFlag, _ := cmd.Flags().GetString("home")
			configType, _ := cmd.Flags().GetString("config-type")
			backend, _ := cmd.Flags().GetString("backend")
			redisAddr, _ := cmd.Flags().GetString("redis-addr")

			hd, err := resolveHome(homeFlag)
			if err != nil {
				return err
			}
			if configType != "memory" {
				if err := hd.EnsureExists(); err != nil {
					return err
				}
			}

			cfgStore, err := openConfigStore(hd, configType)
			if err != nil {
				return err
			}
			bm, registry, err := openBackend(backend, redisAddr)
			if err != nil {
				return err
			}

			sig := notify.NewSignal()
			p := pool.New(pool.Config{
				Bitmap:   bm,
				Registry: registry,
				Settings: &svcconfig.SettingsSource{Store: cfgStore},
				Notify:   sig,
				Logger:   logger,
			})

			r := replshell.New(p, cfgStore, sig, os.Stdin, os.Stdout)
			return r.Run()
		},
	}
	return cmd
}
