package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Reclaim unused space in the store",
		Long: `Compacts the credential store. This runs automatically after delete
and passwd. Does not require a password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			v, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			before := fileSize(a.cfg.StorePath)
			if err := v.Compact(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %s -> %s\n", before, fileSize(a.cfg.StorePath))
			return nil
		},
	}
}
