package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/credvault/internal/ui"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the vault lives and what it holds",
		Long:  "Shows vault paths, settings and credential names. Does not require a password.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			v, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			initialized, err := v.Initialized()
			if err != nil {
				return err
			}
			names, err := v.Names(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Vault:       %s\n", ui.Path.Sprint(a.cfg.Dir))
			fmt.Fprintf(out, "Master:      %s %s\n", ui.Path.Sprint(a.cfg.MasterPath), presence(initialized))
			fmt.Fprintf(out, "Store:       %s (%s, %s)\n", ui.Path.Sprint(a.cfg.StorePath), a.cfg.Driver, fileSize(a.cfg.StorePath))
			fmt.Fprintf(out, "Encryption:  AES-256-GCM, PBKDF2-SHA256 %d iterations\n", v.Iterations())
			fmt.Fprintf(out, "Credentials: %d\n", len(names))
			for _, name := range names {
				fmt.Fprintf(out, "  %s\n", name)
			}
			if !initialized {
				fmt.Fprintf(out, "\nRun %s to set a master password\n", ui.Code.Sprint("credvault init"))
			}
			return nil
		},
	}
}

func presence(ok bool) string {
	if ok {
		return ui.Success.Sprint(ui.CheckMark)
	}
	return ui.Muted.Sprint("not set")
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "missing"
	}
	if err != nil {
		return "unknown size"
	}
	return formatSize(info.Size())
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
