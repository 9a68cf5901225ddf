package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/ui"
)

func newDeleteCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:               "delete NAME",
		Aliases:           []string{"rm"},
		Short:             "Remove a credential",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.completeNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			name := args[0]

			return a.withSession(ctx, cmd.ErrOrStderr(), func(v *core.Vault, s *core.Session) error {
				found, err := s.Exists(ctx, name)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%q: %w", name, core.ErrNotFound)
				}

				if !force {
					ok, err := a.prompt.Confirm(fmt.Sprintf("Delete %s?", ui.Highlight.Sprint(name)))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, "Aborted")
						return nil
					}
				}

				if err := s.Delete(ctx, name); err != nil {
					return err
				}
				a.compact(ctx, cmd.ErrOrStderr(), v)

				fmt.Fprintf(out, "%s Deleted %s\n", ui.Success.Sprint(ui.CheckMark), ui.Highlight.Sprint(name))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete without confirmation")
	return cmd
}
