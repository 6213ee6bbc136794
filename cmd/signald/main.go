package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peerdrop/internal/config"
	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/signaling"
	"github.com/rudransh-shrivastava/peerdrop/internal/ui"
)

func main() {
	var opts config.Options

	root := &cobra.Command{
		Use:           "signald",
		Short:         "peerdrop signaling server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}
			log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})

			srv, err := signaling.NewServer(signaling.Config{Addr: cfg.SignalAddr, Logger: log})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	root.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a TOML config file")
	root.Flags().StringVar(&opts.SignalAddr, "addr", "", "listen address")
	root.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level")
	root.Flags().StringVar(&opts.LogFile, "log-file", "", "rotate logs into this file")

	if err := root.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
