package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/ui"
)

func newListCmd(a *app) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show all credentials",
		Long:    "Shows every credential in the order it was added. Values are masked unless --reveal is given.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return a.withSession(ctx, cmd.ErrOrStderr(), func(_ *core.Vault, s *core.Session) error {
				credentials, err := s.List(ctx)
				if err != nil {
					return err
				}
				if len(credentials) == 0 {
					fmt.Fprintln(out, "No credentials stored")
					return nil
				}
				for i := range credentials {
					fmt.Fprint(out, ui.FormatCredential(&credentials[i], reveal))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "show entry values")
	return cmd
}
