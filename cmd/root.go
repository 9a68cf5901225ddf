package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/illarion/credvault/internal/config"
	"github.com/illarion/credvault/internal/logging"
	"github.com/illarion/credvault/internal/ui"
)

// app carries what every command needs once the root has resolved its
// configuration.
type app struct {
	cfgFile string
	debug   bool

	cfg    *config.Config
	log    *slog.Logger
	prompt *ui.Prompter
}

// NewRootCmd builds the credvault command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "credvault",
		Short: "credvault - local encrypted credential vault",
		Long: `credvault keeps named credentials, each a set of key/value entries,
encrypted on disk under a single master password.

Set CREDVAULT_PASSWORD to supply the master password non-interactively.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.credvault/config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(a),
		newAddCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newPasswdCmd(a),
		newStatusCmd(a),
		newCompactCmd(a),
		newCompletionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		return HandleError(root.ErrOrStderr(), err)
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.Options{ConfigFile: a.cfgFile})
	if err != nil {
		return err
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.prompt = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	return nil
}

func newPrompter(in io.Reader, out io.Writer) *ui.Prompter {
	if f, ok := in.(*os.File); ok {
		return ui.NewPrompter(f, out)
	}
	return ui.NewLinePrompter(in, out)
}
