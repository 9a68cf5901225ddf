package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/credvault/internal/master"
	"github.com/illarion/credvault/internal/storage"
)

func seed(t *testing.T, s *Session) map[string]Entries {
	t.Helper()
	want := map[string]Entries{
		"github": github(),
		"aws":    {{"key_id", "AKIA"}, {"secret", "wJalr"}},
		"db":     {{"dsn", "postgres://u:p@h/db"}},
	}
	for _, name := range []string{"github", "aws", "db"} {
		_, err := s.Add(context.Background(), name, want[name])
		require.NoError(t, err)
	}
	return want
}

func assertVault(t *testing.T, v *Vault, password []byte, want map[string]Entries) {
	t.Helper()
	s, err := v.Authenticate(context.Background(), password)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, len(want))
	for _, c := range all {
		assert.Equal(t, want[c.Name], c.Entries, c.Name)
	}
}

func assertNoRotationLeftovers(t *testing.T, v *Vault) {
	t.Helper()
	_, staged, err := v.master.Pending()
	require.NoError(t, err)
	assert.False(t, staged)

	marker, err := v.backend.Meta(context.Background(), metaRotation)
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestRotatePassword(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		v, s, _ := openSession(t, driver)
		want := seed(t, s)

		var states []RotationState
		err := s.RotatePassword(ctx, masterPassword, otherPassword, func(st RotationState) {
			states = append(states, st)
		})
		require.NoError(t, err)
		assert.Equal(t, []RotationState{
			RotationVerifying, RotationDecrypting, RotationReEncrypting, RotationCommitting, RotationIdle,
		}, states)

		_, err = v.Authenticate(ctx, masterPassword)
		assert.ErrorIs(t, err, ErrAuthentication)
		assertVault(t, v, otherPassword, want)
		assertNoRotationLeftovers(t, v)

		// the session switched to the new password
		got, err := s.Get(ctx, "github")
		require.NoError(t, err)
		assert.Equal(t, want["github"], got.Entries)
	})
}

func TestRotateEmptyVault(t *testing.T) {
	ctx := context.Background()
	v, s, _ := openSession(t, storage.DriverBolt)

	require.NoError(t, s.RotatePassword(ctx, masterPassword, otherPassword))
	assertVault(t, v, otherPassword, map[string]Entries{})
}

func TestRotateWrongOldPassword(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		v, s, _ := openSession(t, driver)
		want := seed(t, s)

		var states []RotationState
		err := v.RotatePassword(ctx, []byte("wrong"), otherPassword, func(st RotationState) {
			states = append(states, st)
		})
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.Equal(t, []RotationState{RotationVerifying, RotationFailed}, states)

		assertVault(t, v, masterPassword, want)
		assertNoRotationLeftovers(t, v)
	})
}

func TestRotateRejectsNewPassword(t *testing.T) {
	ctx := context.Background()
	v, s, _ := openSession(t, storage.DriverBolt)
	want := seed(t, s)

	assert.ErrorIs(t, v.RotatePassword(ctx, masterPassword, nil), ErrValidation)
	assertVault(t, v, masterPassword, want)
}

func TestRotateAbortsOnCorruptRecord(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		v, s, _ := openSession(t, driver)
		seed(t, s)

		before, err := v.backend.List(ctx)
		require.NoError(t, err)
		corrupt := before[1]
		corrupt.Blob = append([]byte(nil), corrupt.Blob...)
		corrupt.Blob[len(corrupt.Blob)-1] ^= 0xff
		require.NoError(t, v.backend.Update(ctx, corrupt))
		before[1] = corrupt

		err = v.RotatePassword(ctx, masterPassword, otherPassword)
		assert.ErrorIs(t, err, ErrAuthentication)

		after, err := v.backend.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		_, err = v.Authenticate(ctx, otherPassword)
		assert.ErrorIs(t, err, ErrAuthentication)
		auth, err := v.Authenticate(ctx, masterPassword)
		require.NoError(t, err)
		auth.Close()
		assertNoRotationLeftovers(t, v)
	})
}

func TestRotateBusy(t *testing.T) {
	v, s, cfg := openSession(t, storage.DriverBolt)
	want := seed(t, s)

	other := flock.New(cfg.StorePath + lockSuffix)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = v.RotatePassword(ctx, masterPassword, otherPassword)
	assert.ErrorIs(t, err, ErrVaultBusy)

	assertVault(t, v, masterPassword, want)
}

func TestRotateCanceled(t *testing.T) {
	v, s, _ := openSession(t, storage.DriverSQLite)
	want := seed(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := v.RotatePassword(ctx, masterPassword, otherPassword)
	assert.ErrorIs(t, err, context.Canceled)

	assertVault(t, v, masterPassword, want)
}

func TestRecoverDiscardsUncommittedRotation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		v, s, _ := openSession(t, driver)
		want := seed(t, s)

		// crash after staging, before the store commit
		_, err := v.master.Stage(otherPassword)
		require.NoError(t, err)

		_, err = v.Authenticate(ctx, otherPassword)
		assert.ErrorIs(t, err, ErrAuthentication)
		assertNoRotationLeftovers(t, v)
		assertVault(t, v, masterPassword, want)
	})
}

func TestRecoverPromotesCommittedRotation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		v, s, cfg := openSession(t, driver)
		want := seed(t, s)
		s.Close()

		// crash after the store commit, before promoting the staged hash
		all, err := v.store.GetAll(ctx, masterPassword)
		require.NoError(t, err)
		blobs, err := v.store.reseal(all, otherPassword)
		require.NoError(t, err)
		digest, err := v.master.Stage(otherPassword)
		require.NoError(t, err)
		require.NoError(t, v.backend.ReplaceBlobs(ctx, blobs, map[string][]byte{metaRotation: digest}))
		require.NoError(t, v.Close())

		v = openVault(t, cfg)
		_, err = v.Authenticate(ctx, masterPassword)
		assert.ErrorIs(t, err, ErrAuthentication)
		assertNoRotationLeftovers(t, v)
		assertVault(t, v, otherPassword, want)
	})
}

// promoteBlocker lets the store commit land, then puts a directory where the
// master record lives so promoting the staged hash fails.
type promoteBlocker struct {
	storage.Backend
	masterPath string
}

func (b promoteBlocker) ReplaceBlobs(ctx context.Context, blobs map[uint64][]byte, meta map[string][]byte) error {
	if err := b.Backend.ReplaceBlobs(ctx, blobs, meta); err != nil {
		return err
	}
	if err := os.Rename(b.masterPath, b.masterPath+".moved"); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(b.masterPath, "blocker"), 0700)
}

func TestSessionFollowsCommittedRotation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		v, s, cfg := openSession(t, driver)
		want := seed(t, s)

		backend := v.backend
		v.backend = promoteBlocker{Backend: backend, masterPath: cfg.MasterPath}

		err := s.RotatePassword(ctx, masterPassword, otherPassword)
		require.Error(t, err)

		// Records are under the new password and the session follows them
		got, err := s.Get(ctx, "github")
		require.NoError(t, err)
		assert.Equal(t, want["github"], got.Entries)

		v.backend = backend
		require.NoError(t, os.RemoveAll(cfg.MasterPath))
		require.NoError(t, os.Rename(cfg.MasterPath+".moved", cfg.MasterPath))

		assertVault(t, v, otherPassword, want)
		assertNoRotationLeftovers(t, v)
	})
}

func TestRecoverClearsOrphanMarker(t *testing.T) {
	ctx := context.Background()
	v, _, _ := openSession(t, storage.DriverBolt)

	require.NoError(t, v.backend.SetMeta(ctx, metaRotation, master.Digest([]byte("stale"))))

	s, err := v.Authenticate(ctx, masterPassword)
	require.NoError(t, err)
	s.Close()
	assertNoRotationLeftovers(t, v)
}

func TestRecoverIgnoresMismatchedMarker(t *testing.T) {
	ctx := context.Background()
	v, s, cfg := openSession(t, storage.DriverSQLite)
	want := seed(t, s)

	_, err := v.master.Stage(otherPassword)
	require.NoError(t, err)
	require.NoError(t, v.backend.SetMeta(ctx, metaRotation, master.Digest([]byte("other"))))

	assertVault(t, v, masterPassword, want)
	assertNoRotationLeftovers(t, v)

	_, err = os.Stat(cfg.MasterPath + ".pending")
	assert.True(t, os.IsNotExist(err))
}

func TestRotationStateString(t *testing.T) {
	assert.Equal(t, "re-encrypting", RotationReEncrypting.String())
	assert.Equal(t, "failed", RotationFailed.String())
	assert.Equal(t, "RotationState(42)", RotationState(42).String())
}
