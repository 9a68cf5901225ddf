package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/ui"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		key  string
		mask bool
	)

	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Show a credential",
		Example: `  credvault get github
  credvault get github --key token   # print one value, for scripts`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.completeNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return a.withSession(ctx, cmd.ErrOrStderr(), func(_ *core.Vault, s *core.Session) error {
				c, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}

				if key != "" {
					value, ok := c.Entries.Get(key)
					if !ok {
						return fmt.Errorf("%q has no entry %q: %w", c.Name, key, core.ErrNotFound)
					}
					fmt.Fprintln(out, value)
					return nil
				}

				fmt.Fprint(out, ui.FormatCredential(c, !mask))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "print only the value of this entry")
	cmd.Flags().BoolVar(&mask, "mask", false, "hide entry values")
	return cmd
}
