package cmd

import (
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "open a room and wait for peers",
		Long: `creates a room, prints its ID and waits for peers to join.
			Files received are saved to --out. With --send, the file is sent to the first peer that connects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.sendPath, "send", "", "file to send once a peer connects")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "directory for received files")
	return cmd
}
