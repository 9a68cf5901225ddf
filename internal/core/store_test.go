package core

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/credvault/internal/storage"
)

func TestStoreInsertGet(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		c, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)
		assert.NotZero(t, c.ID)
		assert.Equal(t, "github", c.Name)

		got, err := s.Get(ctx, "github", masterPassword)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, github(), got.Entries)

		found, err := s.Exists(ctx, "github")
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestStoreGetMissing(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		s, _ := newTestStore(t, driver)

		got, err := s.Get(context.Background(), "nope", masterPassword)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStoreInsertRejects(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		_, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)

		_, err = s.Insert(ctx, "github", Entries{{"other", "x"}}, masterPassword)
		assert.ErrorIs(t, err, ErrDuplicateName)

		_, err = s.Insert(ctx, "  ", github(), masterPassword)
		assert.ErrorIs(t, err, ErrValidation)

		_, err = s.Insert(ctx, "empty", Entries{}, masterPassword)
		assert.ErrorIs(t, err, ErrValidation)

		_, err = s.Insert(ctx, "dup", Entries{{"k", "1"}, {"k", "2"}}, masterPassword)
		assert.ErrorIs(t, err, ErrValidation)

		// Would not survive the JSON round trip unchanged
		_, err = s.Insert(ctx, "binary", Entries{{"pin", "\xff\xfe"}}, masterPassword)
		assert.ErrorIs(t, err, ErrValidation)

		_, err = s.Insert(ctx, "\xff", github(), masterPassword)
		assert.ErrorIs(t, err, ErrValidation)

		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"github"}, names)
	})
}

func TestStoreNamesAreCaseSensitive(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		_, err := s.Insert(ctx, "GitHub", github(), masterPassword)
		require.NoError(t, err)
		_, err = s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)
	})
}

func TestStoreBlobIsOpaque(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, backend := newTestStore(t, driver)

		_, err := s.Insert(ctx, "a", github(), masterPassword)
		require.NoError(t, err)
		_, err = s.Insert(ctx, "b", github(), masterPassword)
		require.NoError(t, err)

		a, err := backend.Get(ctx, "a")
		require.NoError(t, err)
		b, err := backend.Get(ctx, "b")
		require.NoError(t, err)

		assert.False(t, bytes.Contains(a.Blob, []byte("octocat")))
		assert.False(t, bytes.Contains(a.Blob, []byte("ghp_secret")))
		// fresh salt and nonce per record
		assert.NotEqual(t, a.Blob, b.Blob)
	})
}

func TestStoreGetAll(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		for _, name := range []string{"zeta", "alpha", "mid"} {
			_, err := s.Insert(ctx, name, Entries{{"name", name}}, masterPassword)
			require.NoError(t, err)
		}

		all, err := s.GetAll(ctx, masterPassword)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, name := range []string{"zeta", "alpha", "mid"} {
			assert.Equal(t, name, all[i].Name)
			v, _ := all[i].Entries.Get("name")
			assert.Equal(t, name, v)
		}

		empty, _ := newTestStore(t, driver)
		none, err := empty.GetAll(ctx, masterPassword)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestStoreWrongPassword(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		_, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)

		_, err = s.Get(ctx, "github", otherPassword)
		assert.ErrorIs(t, err, ErrAuthentication)

		_, err = s.GetAll(ctx, otherPassword)
		assert.ErrorIs(t, err, ErrAuthentication)

		_, err = s.Get(ctx, "github", nil)
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestStoreGetAllFailsOnCorruptRow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, backend := newTestStore(t, driver)

		_, err := s.Insert(ctx, "good", github(), masterPassword)
		require.NoError(t, err)
		bad, err := s.Insert(ctx, "bad", github(), masterPassword)
		require.NoError(t, err)

		require.NoError(t, backend.Update(ctx, storage.Record{ID: bad.ID, Name: "bad", Blob: []byte("garbage")}))

		_, err = s.GetAll(ctx, masterPassword)
		assert.ErrorIs(t, err, ErrAuthentication)

		good, err := s.Get(ctx, "good", masterPassword)
		require.NoError(t, err)
		assert.Equal(t, github(), good.Entries)
	})
}

func TestStoreUpdate(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		orig, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)

		updated := Entries{{"username", "hubot"}}
		require.NoError(t, s.Update(ctx, "github", "gh", updated, masterPassword))

		old, err := s.Get(ctx, "github", masterPassword)
		require.NoError(t, err)
		assert.Nil(t, old)

		got, err := s.Get(ctx, "gh", masterPassword)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, orig.ID, got.ID)
		assert.Equal(t, updated, got.Entries)

		// entries only
		require.NoError(t, s.Update(ctx, "gh", "", github(), masterPassword))
		got, err = s.Get(ctx, "gh", masterPassword)
		require.NoError(t, err)
		assert.Equal(t, github(), got.Entries)
	})
}

func TestStoreUpdateRenameCollision(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		_, err := s.Insert(ctx, "a", Entries{{"k", "a"}}, masterPassword)
		require.NoError(t, err)
		_, err = s.Insert(ctx, "b", Entries{{"k", "b"}}, masterPassword)
		require.NoError(t, err)

		err = s.Update(ctx, "a", "b", Entries{{"k", "changed"}}, masterPassword)
		assert.ErrorIs(t, err, ErrDuplicateName)

		a, err := s.Get(ctx, "a", masterPassword)
		require.NoError(t, err)
		assert.Equal(t, Entries{{"k", "a"}}, a.Entries)
		b, err := s.Get(ctx, "b", masterPassword)
		require.NoError(t, err)
		assert.Equal(t, Entries{{"k", "b"}}, b.Entries)
	})
}

func TestStoreUpdateRejects(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		err := s.Update(ctx, "missing", "", github(), masterPassword)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)

		assert.ErrorIs(t, s.Update(ctx, "github", "", Entries{}, masterPassword), ErrValidation)
		assert.ErrorIs(t, s.Update(ctx, "github", " ", github(), masterPassword), ErrValidation)
	})
}

func TestStoreUpdateCredentialByID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		c, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)
		require.NoError(t, s.Update(ctx, "github", "renamed", github(), masterPassword))

		// c still carries the old name; the row is found by id
		require.NoError(t, s.UpdateCredential(ctx, c, "", Entries{{"k", "v"}}, masterPassword))
		got, err := s.Get(ctx, "renamed", masterPassword)
		require.NoError(t, err)
		assert.Equal(t, Entries{{"k", "v"}}, got.Entries)

		require.NoError(t, s.DeleteCredential(ctx, c))
		err = s.UpdateCredential(ctx, c, "", github(), masterPassword)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreDelete(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, _ := newTestStore(t, driver)

		_, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "github"))

		found, err := s.Exists(ctx, "github")
		require.NoError(t, err)
		assert.False(t, found)

		assert.ErrorIs(t, s.Delete(ctx, "github"), ErrNotFound)

		// the name is free again
		_, err = s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)
	})
}

func TestStoreReseal(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		s, backend := newTestStore(t, driver)

		c, err := s.Insert(ctx, "github", github(), masterPassword)
		require.NoError(t, err)

		blobs, err := s.reseal([]Credential{*c}, otherPassword)
		require.NoError(t, err)
		require.Len(t, blobs, 1)

		// nothing written yet
		got, err := s.Get(ctx, "github", masterPassword)
		require.NoError(t, err)
		assert.Equal(t, github(), got.Entries)

		require.NoError(t, backend.ReplaceBlobs(ctx, blobs, nil))
		got, err = s.Get(ctx, "github", otherPassword)
		require.NoError(t, err)
		assert.Equal(t, github(), got.Entries)
	})
}
