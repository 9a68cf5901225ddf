package core

import (
	"errors"
	"fmt"

	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/storage"
)

// Input errors are recoverable: the caller can re-prompt.
var (
	// ErrValidation indicates malformed input such as an empty name or duplicate entry keys.
	ErrValidation = errors.New("invalid input")

	// ErrDuplicateName indicates another credential already uses the name.
	ErrDuplicateName = errors.New("credential name already in use")

	// ErrNotFound indicates the targeted credential does not exist.
	ErrNotFound = errors.New("credential not found")
)

// ErrAuthentication covers both a wrong master password and a record that
// fails its integrity check. The two are deliberately indistinguishable.
var ErrAuthentication = errors.New("authentication failed")

// ErrStorage indicates the underlying database or file failed.
var ErrStorage = errors.New("storage failure")

// Vault state errors.
var (
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrAlreadyInitialized = errors.New("vault already initialized")
	ErrVaultBusy          = errors.New("vault is in use by another process")
	ErrSessionClosed      = errors.New("session closed")
)

// mapError translates lower-layer errors into this package's error kinds
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNameTaken):
		return fmt.Errorf("%s: %w", op, ErrDuplicateName)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrLocked):
		return fmt.Errorf("%s: %w", op, ErrVaultBusy)
	case errors.Is(err, crypto.ErrAuthFailed):
		return fmt.Errorf("%s: %w", op, ErrAuthentication)
	case errors.Is(err, crypto.ErrInvalidInput):
		return fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrStorage), errors.Is(err, ErrVaultBusy),
		errors.Is(err, ErrNotInitialized), errors.Is(err, ErrSessionClosed):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
}
