// Package cmd implements the peerdrop command line.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peerdrop/internal/config"
	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/ui"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	opts   config.Options
	cfg    *config.Config
	logger *logrus.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "peerdrop",
		Short:         "peer to peer file transfer over WebRTC",
		Long:          `peerdrop connects two machines directly and sends files between them. One side creates a room and shares its ID, the other joins it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.opts)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.ConfigPath, "config", "", "path to a TOML config file")
	flags.StringVar(&a.opts.SignalURL, "signal-url", "", "signaling server websocket URL")
	flags.StringSliceVar(&a.opts.STUNServers, "stun", nil, "STUN server URLs")
	flags.StringVar(&a.opts.TURNServer, "turn", "", "TURN server URL")
	flags.StringVar(&a.opts.TURNUser, "turn-user", "", "TURN username")
	flags.StringVar(&a.opts.TURNPass, "turn-pass", "", "TURN password")
	flags.StringVar(&a.opts.IDPolicy, "id-policy", "", "identifier policy: numeric or assigned")
	flags.IntVar(&a.opts.Capacity, "capacity", 0, "maximum simultaneous peers")
	flags.StringVar(&a.opts.Format, "format", "", "wire format: json, msgpack, cbor or protobuf")
	flags.StringVar(&a.opts.HistoryPath, "history", "", "transfer history database path")
	flags.StringVar(&a.opts.LogLevel, "log-level", "", "log level")

	root.AddCommand(newCreateCmd(a))
	root.AddCommand(newJoinCmd(a))
	root.AddCommand(newHistoryCmd(a))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
