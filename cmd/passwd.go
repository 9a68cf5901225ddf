package cmd

import (
	"fmt"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/ui"
)

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password",
		Long: `Changes the master password and re-encrypts every credential with it.
Either every credential moves to the new password or nothing changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			v, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			ok, err := v.Initialized()
			if err != nil {
				return err
			}
			if !ok {
				return core.ErrNotInitialized
			}

			current, _, err := a.readPassword("Current master password: ")
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(current)

			session, err := v.Authenticate(ctx, current)
			if err != nil {
				return err
			}
			defer session.Close()

			next, err := a.readNewPassword("New master password: ")
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(next)

			err = withSpinner(errOut, "Verifying...", func(s *spinner.Spinner) error {
				return session.RotatePassword(ctx, current, next, func(state core.RotationState) {
					ui.Step(s, rotationMessage(state))
				})
			})
			if err != nil {
				return err
			}

			a.compact(ctx, errOut, v)
			fmt.Fprintf(out, "%s Master password changed\n", ui.Success.Sprint(ui.CheckMark))
			return nil
		},
	}
}

func rotationMessage(state core.RotationState) string {
	switch state {
	case core.RotationVerifying:
		return "Verifying current password..."
	case core.RotationDecrypting:
		return "Decrypting credentials..."
	case core.RotationReEncrypting:
		return "Re-encrypting credentials..."
	case core.RotationCommitting:
		return "Saving..."
	}
	return state.String()
}
