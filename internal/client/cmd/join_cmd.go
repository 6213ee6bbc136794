package cmd

import (
	"github.com/spf13/cobra"
)

func newJoinCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "join <id>",
		Short: "join a room by its ID",
		Long: `connects to the room with the given ID, optionally sends a file and saves whatever is received.
			Exits when the room empties.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.remoteID = args[0]
			opts.join = true
			return a.run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.sendPath, "send", "", "file to send once connected")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "directory for received files")
	return cmd
}
