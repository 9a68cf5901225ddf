package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completions",
		Long: `Outputs a shell completion script.

  # Bash - add to ~/.bashrc
  eval "$(credvault completion bash)"

  # Zsh - add to ~/.zshrc
  eval "$(credvault completion zsh)"

  # Fish - add to ~/.config/fish/config.fish
  credvault completion fish | source`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		// no config needed to print a script
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return fmt.Errorf("unknown shell %q, supported: bash, zsh, fish, powershell", args[0])
		},
	}
}

// completeNames offers stored credential names. It reads names only, so no
// password is needed.
func (a *app) completeNames(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	// completion requests skip the persistent pre-run
	if a.cfg == nil {
		if err := a.setup(cmd, args); err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v, err := a.openVault(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer v.Close()

	names, err := v.Names(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
