package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/exp/slog"

	"github.com/illarion/credvault/internal/config"
	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/logging"
	"github.com/illarion/credvault/internal/master"
	"github.com/illarion/credvault/internal/security"
	"github.com/illarion/credvault/internal/storage"
)

const (
	metaIterations = "kdf_iterations"
	metaRotation   = "rotation"

	lockSuffix  = ".lock"
	lockTimeout = 2 * time.Second
	lockRetry   = 50 * time.Millisecond

	// MaxPasswordLen is the longest master password bcrypt can hash
	MaxPasswordLen = 72
)

// Vault ties the master-password record to the credential store. It is the
// only way to obtain a Session.
type Vault struct {
	master  *master.Store
	backend storage.Backend
	store   *Store
	cipher  *crypto.Cipher
	lock    *flock.Flock
	log     *slog.Logger
}

// Open opens the master record and the credential store described by cfg.
// The store is created if it does not exist yet.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Vault, error) {
	if log == nil {
		log = logging.Discard()
	}

	ms, err := master.New(cfg.MasterPath, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	backend, err := storage.Open(cfg.Driver, cfg.StorePath)
	if err != nil {
		return nil, mapError("open store", err)
	}

	v, err := newVault(ctx, ms, backend, cfg.KDFIterations, cfg.StorePath+lockSuffix, log)
	if err != nil {
		backend.Close()
		return nil, err
	}

	for _, path := range []string{cfg.MasterPath, cfg.StorePath} {
		if err := security.CheckPrivate(path); err != nil {
			log.Warn("vault file is not private", "error", err)
		}
	}
	return v, nil
}

func newVault(ctx context.Context, ms *master.Store, backend storage.Backend, iterations int, lockPath string, log *slog.Logger) (*Vault, error) {
	iterations, err := loadIterations(ctx, backend, iterations)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewCipher(iterations)
	if err != nil {
		return nil, mapError("open store", err)
	}

	log.Debug("vault opened", "master", ms.Path(), "iterations", iterations)
	return &Vault{
		master:  ms,
		backend: backend,
		store:   NewStore(backend, cipher, log),
		cipher:  cipher,
		lock:    flock.New(lockPath),
		log:     log,
	}, nil
}

// loadIterations returns the iteration count the store was created with,
// recording fallback as that count for a new store.
func loadIterations(ctx context.Context, backend storage.Backend, fallback int) (int, error) {
	raw, err := backend.Meta(ctx, metaIterations)
	if err != nil {
		return 0, mapError("read iterations", err)
	}
	if raw == nil {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(fallback))
		if err := backend.SetMeta(ctx, metaIterations, buf); err != nil {
			return 0, mapError("write iterations", err)
		}
		return fallback, nil
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("read iterations: %w: malformed value", ErrStorage)
	}
	return int(binary.BigEndian.Uint32(raw)), nil
}

// Iterations reports the key-derivation work factor of this store
func (v *Vault) Iterations() int {
	return v.cipher.Iterations
}

// Initialized reports whether a master password has been set
func (v *Vault) Initialized() (bool, error) {
	ok, err := v.master.Exists()
	if err != nil {
		return false, mapError("check master record", err)
	}
	return ok, nil
}

// Initialize sets the master password on first run
func (v *Vault) Initialize(ctx context.Context, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	ok, err := v.Initialized()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}

	if err := v.master.Create(password); err != nil {
		return mapError("create master record", err)
	}
	v.log.Info("master password set", "path", v.master.Path())
	return nil
}

// Authenticate verifies password against the master record and opens a
// Session holding it. An interrupted rotation is settled first.
func (v *Vault) Authenticate(ctx context.Context, password []byte) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := v.recover(ctx); err != nil {
		return nil, err
	}

	ok, err := v.Initialized()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}

	if err := v.verify(password); err != nil {
		return nil, err
	}

	v.log.Debug("session opened")
	return newSession(v, password), nil
}

func (v *Vault) verify(password []byte) error {
	if len(password) == 0 {
		return ErrAuthentication
	}
	match, err := v.master.Verify(password)
	if errors.Is(err, master.ErrMissing) {
		return ErrNotInitialized
	}
	if err != nil {
		return mapError("verify master password", err)
	}
	if !match {
		return ErrAuthentication
	}
	return nil
}

// Names lists credential names without a password
func (v *Vault) Names(ctx context.Context) ([]string, error) {
	return v.store.Names(ctx)
}

// Compact reclaims unused space in the store
func (v *Vault) Compact(ctx context.Context) error {
	if err := v.backend.Compact(ctx); err != nil {
		return mapError("compact", err)
	}
	return nil
}

// Close releases the store. Sessions opened from this vault must not be used
// afterwards.
func (v *Vault) Close() error {
	if err := v.backend.Close(); err != nil {
		return mapError("close store", err)
	}
	return nil
}

// recover settles a rotation that was interrupted between staging the new
// master hash and promoting it. If the store recorded the staged hash's
// digest, the records were committed under the new password and the staged
// hash becomes live. Otherwise the records were never touched and the staged
// hash is thrown away.
func (v *Vault) recover(ctx context.Context) error {
	digest, staged, err := v.master.Pending()
	if err != nil {
		return mapError("recover rotation", err)
	}
	marker, err := v.backend.Meta(ctx, metaRotation)
	if err != nil {
		return mapError("recover rotation", err)
	}

	switch {
	case staged && marker != nil && crypto.ConstantTimeCompare(marker, digest):
		v.log.Warn("completing interrupted password rotation")
		if err := v.master.Promote(); err != nil {
			return mapError("recover rotation", err)
		}
	case staged:
		v.log.Warn("discarding unfinished password rotation")
		if err := v.master.Discard(); err != nil {
			return mapError("recover rotation", err)
		}
	}

	if marker != nil {
		if err := v.backend.SetMeta(ctx, metaRotation, nil); err != nil {
			return mapError("recover rotation", err)
		}
	}
	return nil
}

// ValidatePassword rejects master passwords bcrypt cannot hash
func ValidatePassword(password []byte) error {
	if len(password) == 0 {
		return fmt.Errorf("%w: password is empty", ErrValidation)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("%w: password is longer than %d bytes", ErrValidation, MaxPasswordLen)
	}
	return nil
}
