package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/ui"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Set the master password of a new vault",
		Long: `Creates the vault and sets its master password.
The password is stored only as a bcrypt hash; if you forget it, the
credentials cannot be recovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			v, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			ok, err := v.Initialized()
			if err != nil {
				return err
			}
			if ok {
				return core.ErrAlreadyInitialized
			}

			password, err := a.setupPassword(ctx, cmd.ErrOrStderr(), v)
			if err != nil {
				return err
			}
			crypto.ClearBytes(password)

			fmt.Fprintf(out, "%s Initialized vault in %s\n", ui.Success.Sprint(ui.CheckMark), ui.Path.Sprint(a.cfg.Dir))
			return nil
		},
	}
}
