package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peerdrop/internal/ui"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		wipe  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "show sent and received files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := a.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = hs.Close() }()

			if wipe {
				if err := hs.Clear(cmd.Context()); err != nil {
					return err
				}
				ui.PrintSuccess("History cleared")
				return nil
			}

			transfers, err := hs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			ui.RenderHistory(transfers)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of transfers to show, 0 for all")
	cmd.Flags().BoolVar(&wipe, "clear", false, "delete the history")
	return cmd
}
