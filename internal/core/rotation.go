package core

import (
	"context"
	"errors"
	"fmt"
)

// RotationState is a step of a master-password rotation
type RotationState int

const (
	RotationIdle RotationState = iota
	RotationVerifying
	RotationDecrypting
	RotationReEncrypting
	RotationCommitting
	RotationFailed
)

func (s RotationState) String() string {
	switch s {
	case RotationIdle:
		return "idle"
	case RotationVerifying:
		return "verifying"
	case RotationDecrypting:
		return "decrypting"
	case RotationReEncrypting:
		return "re-encrypting"
	case RotationCommitting:
		return "committing"
	case RotationFailed:
		return "failed"
	}
	return fmt.Sprintf("RotationState(%d)", int(s))
}

// RotationObserver is called on every state change of a rotation
type RotationObserver func(RotationState)

// RotatePassword re-encrypts every credential under newPassword and makes it
// the master password. Either all records and the master hash move to
// newPassword, or nothing changes.
//
// The new hash is staged next to the master record first. All re-encrypted
// blobs are then committed in one store transaction together with the staged
// hash's digest, and only after that is the staged hash promoted. A crash in
// between is settled by the next Authenticate or RotatePassword.
func (v *Vault) RotatePassword(ctx context.Context, oldPassword, newPassword []byte, observers ...RotationObserver) error {
	_, err := v.rotate(ctx, oldPassword, newPassword, observers)
	return err
}

// rotate reports committed once the records are under newPassword, even when
// a later step fails and the hash swap is left to recovery.
func (v *Vault) rotate(ctx context.Context, oldPassword, newPassword []byte, observers []RotationObserver) (committed bool, err error) {
	state := RotationIdle
	enter := func(next RotationState) {
		v.log.Debug("rotation state", "from", state.String(), "to", next.String())
		state = next
		for _, observe := range observers {
			observe(next)
		}
	}
	defer func() {
		if err != nil {
			v.log.Warn("password rotation failed", "state", state.String(), "error", err)
			enter(RotationFailed)
			return
		}
		enter(RotationIdle)
	}()

	if err := ValidatePassword(newPassword); err != nil {
		return false, err
	}

	unlock, err := v.acquireLock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if err := v.recover(ctx); err != nil {
		return false, err
	}

	enter(RotationVerifying)
	if err := v.verify(oldPassword); err != nil {
		return false, err
	}

	enter(RotationDecrypting)
	credentials, err := v.store.GetAll(ctx, oldPassword)
	if err != nil {
		return false, err
	}

	enter(RotationReEncrypting)
	blobs, err := v.store.reseal(credentials, newPassword)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	enter(RotationCommitting)
	digest, err := v.master.Stage(newPassword)
	if err != nil {
		return false, v.abortStaged(mapError("stage master record", err))
	}
	if err := v.backend.ReplaceBlobs(ctx, blobs, map[string][]byte{metaRotation: digest}); err != nil {
		err = v.settle(ctx, mapError("commit re-encrypted records", err))
		return v.verify(newPassword) == nil, err
	}

	// Records are now under newPassword. From here on a failure leaves the
	// marker in place so recover can finish the job.
	if err := v.master.Promote(); err != nil {
		return true, mapError("promote master record", err)
	}
	if err := v.backend.SetMeta(ctx, metaRotation, nil); err != nil {
		return true, mapError("clear rotation marker", err)
	}

	v.log.Info("master password rotated", "credentials", len(blobs))
	return true, nil
}

// abortStaged drops the staged master hash when nothing was committed
func (v *Vault) abortStaged(cause error) error {
	if err := v.master.Discard(); err != nil {
		return errors.Join(cause, mapError("discard staged master record", err))
	}
	return cause
}

// settle runs recovery after a failed commit. The store's marker decides
// whether the staged hash is promoted or discarded, so an error reported by
// a commit that did reach disk cannot split the vault across two passwords.
func (v *Vault) settle(ctx context.Context, cause error) error {
	if err := v.recover(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (v *Vault) acquireLock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := v.lock.TryLockContext(lockCtx, lockRetry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrVaultBusy
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, mapError("lock vault", err)
	}
	if !locked {
		return nil, ErrVaultBusy
	}

	return func() {
		if err := v.lock.Unlock(); err != nil {
			v.log.Warn("failed to release vault lock", "error", err)
		}
	}, nil
}
