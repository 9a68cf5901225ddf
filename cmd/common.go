package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/briandowns/spinner"

	"github.com/illarion/credvault/internal/core"
	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/ui"
)

const maxPasswordAttempts = 3

func (a *app) openVault(ctx context.Context) (*core.Vault, error) {
	return core.Open(ctx, a.cfg, a.log)
}

// readPassword takes the password from CREDVAULT_PASSWORD or prompts for it.
// fromEnv reports which one happened. The caller clears the result.
func (a *app) readPassword(prompt string) (password []byte, fromEnv bool, err error) {
	if password := ui.PasswordFromEnv(); password != nil {
		return password, true, nil
	}
	password, err = a.prompt.Password(prompt)
	return password, false, err
}

// readNewPassword asks for a new master password twice
func (a *app) readNewPassword(prompt string) ([]byte, error) {
	password, err := a.prompt.PasswordConfirm(prompt, "Confirm password: ")
	if err != nil {
		return nil, err
	}
	if err := core.ValidatePassword(password); err != nil {
		crypto.ClearBytes(password)
		return nil, err
	}
	return password, nil
}

// setupPassword sets the master password of an uninitialized vault and
// returns it. The caller clears the result.
func (a *app) setupPassword(ctx context.Context, w io.Writer, v *core.Vault) ([]byte, error) {
	password := ui.PasswordFromEnv()
	if password == nil {
		var err error
		password, err = a.readNewPassword("New master password: ")
		if err != nil {
			return nil, err
		}
	}

	err := withSpinner(w, "Saving password...", func(*spinner.Spinner) error {
		return v.Initialize(ctx, password)
	})
	if err != nil {
		crypto.ClearBytes(password)
		return nil, err
	}
	return password, nil
}

// authenticate opens a session, offering first-run setup when the vault has
// no master password yet. Interactive callers get a few attempts.
func (a *app) authenticate(ctx context.Context, w io.Writer, v *core.Vault) (*core.Session, error) {
	ok, err := v.Initialized()
	if err != nil {
		return nil, err
	}
	if !ok {
		fmt.Fprintln(w, ui.Info.Sprint("New here? Set up your master password."))
		password, err := a.setupPassword(ctx, w, v)
		if err != nil {
			return nil, err
		}
		defer crypto.ClearBytes(password)
		return v.Authenticate(ctx, password)
	}

	for attempt := 1; ; attempt++ {
		password, fromEnv, err := a.readPassword("Master password: ")
		if err != nil {
			return nil, err
		}
		session, err := v.Authenticate(ctx, password)
		crypto.ClearBytes(password)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, core.ErrAuthentication) || fromEnv || attempt == maxPasswordAttempts {
			return nil, err
		}
		fmt.Fprintln(w, ui.Warning.Sprint("Wrong password, try again."))
	}
}

// withSession opens the vault, authenticates and runs fn
func (a *app) withSession(ctx context.Context, w io.Writer, fn func(*core.Vault, *core.Session) error) error {
	v, err := a.openVault(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	session, err := a.authenticate(ctx, w, v)
	if err != nil {
		return err
	}
	defer session.Close()

	return fn(v, session)
}

func withSpinner(w io.Writer, message string, fn func(*spinner.Spinner) error) error {
	s := ui.NewSpinner(w, message)
	s.Start()
	err := fn(s)
	s.Stop()
	return err
}

// compact reclaims space after large rewrites. Failure is only a warning.
func (a *app) compact(ctx context.Context, w io.Writer, v *core.Vault) {
	if err := v.Compact(ctx); err != nil {
		a.log.Warn("compaction failed", "error", err)
		fmt.Fprintf(w, "%s compaction failed: %s\n", ui.Warning.Sprint(ui.WarnMark), err)
	}
}

func parseEntries(args []string) (core.Entries, error) {
	entries := make(core.Entries, 0, len(args))
	for _, arg := range args {
		entry, err := core.ParseEntry(arg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HandleError prints err the way users should see it and returns the exit
// code.
func HandleError(w io.Writer, err error) int {
	mark := ui.Error.Sprint(ui.CrossMark)
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(w, "%s vault not initialized\n", mark)
		fmt.Fprintf(w, "Run %s first\n", ui.Code.Sprint("credvault init"))
	case errors.Is(err, core.ErrAlreadyInitialized):
		fmt.Fprintf(w, "%s vault already initialized\n", mark)
		fmt.Fprintf(w, "Use %s to change the master password\n", ui.Code.Sprint("credvault passwd"))
	case errors.Is(err, core.ErrAuthentication):
		fmt.Fprintf(w, "%s wrong password or corrupted data\n", mark)
	case errors.Is(err, core.ErrVaultBusy):
		fmt.Fprintf(w, "%s vault is in use by another process\n", mark)
	case errors.Is(err, ui.ErrPasswordMismatch):
		fmt.Fprintf(w, "%s passwords do not match\n", mark)
	case errors.Is(err, core.ErrStorage):
		fmt.Fprintf(w, "%s storage error: %s\n", mark, err)
	default:
		fmt.Fprintf(w, "%s %s\n", mark, err)
	}
	return 1
}
