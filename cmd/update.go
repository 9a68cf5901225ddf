package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/ui"
)

func newUpdateCmd(a *app) *cobra.Command {
	var (
		newName string
		set     []string
		unset   []string
		yes     bool
		reveal  bool
	)

	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Rename a credential or change its entries",
		Long: `Applies --set and --unset to the credential's entries and renames it
with --name. The change is previewed as a diff and confirmed before it is
saved; name and entries change together or not at all.`,
		Example: `  credvault update github --set token=ghp_new
  credvault update github --name gh --unset scope`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.completeNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if newName == "" && len(set) == 0 && len(unset) == 0 {
				return fmt.Errorf("%w: nothing to update, use --name, --set or --unset", core.ErrValidation)
			}
			changes, err := parseEntries(set)
			if err != nil {
				return err
			}

			return a.withSession(ctx, cmd.ErrOrStderr(), func(_ *core.Vault, s *core.Session) error {
				before, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}

				after := before.Clone()
				if newName != "" {
					if err := core.ValidateName(newName); err != nil {
						return err
					}
					after.Name = newName
				}
				for _, e := range changes {
					after.Entries = after.Entries.Set(e.Key, e.Value)
				}
				for _, key := range unset {
					var ok bool
					if after.Entries, ok = after.Entries.Remove(key); !ok {
						return fmt.Errorf("%q has no entry %q: %w", before.Name, key, core.ErrNotFound)
					}
				}

				diff := ui.CredentialDiff(before, after, reveal)
				if diff == "" {
					fmt.Fprintln(out, "Nothing changed")
					return nil
				}
				fmt.Fprint(out, diff)

				if !yes {
					ok, err := a.prompt.Confirm("Save changes?")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, "Aborted")
						return nil
					}
				}

				rename := ""
				if after.Name != before.Name {
					rename = after.Name
				}
				if err := s.UpdateCredential(ctx, before, rename, after.Entries); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s Updated %s\n", ui.Success.Sprint(ui.CheckMark), ui.Highlight.Sprint(after.Name))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&newName, "name", "", "rename the credential")
	cmd.Flags().StringArrayVar(&set, "set", nil, "set an entry, KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&unset, "unset", nil, "remove an entry by key (repeatable)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "save without confirmation")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "show entry values in the preview")
	return cmd
}
