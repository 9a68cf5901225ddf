package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/ui"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add [NAME [KEY=VALUE...]]",
		Short: "Store a new credential",
		Long: `Stores a new credential under NAME with the given entries.
Missing name or entries are prompted for; entry values are read without echo.`,
		Example: `  credvault add github username=octocat token=ghp_xxx
  credvault add github          # prompts for entries`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return a.withSession(ctx, cmd.ErrOrStderr(), func(_ *core.Vault, s *core.Session) error {
				var name string
				if len(args) > 0 {
					name = args[0]
				} else {
					var err error
					if name, err = a.prompt.Line("Name: "); err != nil {
						return err
					}
				}
				if err := core.ValidateName(name); err != nil {
					return err
				}

				taken, err := s.Exists(ctx, name)
				if err != nil {
					return err
				}
				if taken {
					return fmt.Errorf("%q: %w", name, core.ErrDuplicateName)
				}

				var entries core.Entries
				if len(args) > 1 {
					entries, err = parseEntries(args[1:])
				} else {
					entries, err = a.promptEntries()
				}
				if err != nil {
					return err
				}

				c, err := s.Add(ctx, name, entries)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s Added %s with %d entries\n", ui.Success.Sprint(ui.CheckMark), ui.Highlight.Sprint(c.Name), len(c.Entries))
				return nil
			})
		},
	}
}

// promptEntries reads key/value pairs until an empty key
func (a *app) promptEntries() (core.Entries, error) {
	var entries core.Entries
	for {
		key, err := a.prompt.Line("Key (empty to finish): ")
		if err != nil {
			return nil, err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return entries, nil
		}
		value, err := a.prompt.Password("Value for " + key + ": ")
		if err != nil {
			return nil, err
		}
		entries = entries.Set(key, string(value))
		crypto.ClearBytes(value)
	}
}
