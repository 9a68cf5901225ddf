package master

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "app.key"), bcrypt.MinCost)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadCost(t *testing.T) {
	_, err := New("app.key", bcrypt.MinCost-1)
	assert.Error(t, err)
	_, err = New("app.key", bcrypt.MaxCost+1)
	assert.Error(t, err)
	_, err = New("", DefaultCost)
	assert.Error(t, err)
}

func TestCreateAndVerify(t *testing.T) {
	s := newTestStore(t)

	exists, err := s.Exists()
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Create([]byte("old")))

	exists, err = s.Exists()
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err := s.Verify([]byte("old"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify([]byte("ol"))
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerm), info.Mode().Perm())
}

func TestCreateOverwrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create([]byte("first")))
	require.NoError(t, s.Create([]byte("second")))

	ok, err := s.Verify([]byte("first"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Verify([]byte("second"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmptyFileDoesNotExist(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), nil, FilePerm))

	exists, err := s.Exists()
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Verify([]byte("pw"))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestVerifyMissingAndCorrupt(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Verify([]byte("pw"))
	assert.ErrorIs(t, err, ErrMissing)

	require.NoError(t, os.WriteFile(s.Path(), []byte("not a bcrypt hash"), FilePerm))
	_, err = s.Verify([]byte("pw"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStagePromote(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create([]byte("old")))

	digest, err := s.Stage([]byte("new"))
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	// Live record is unchanged while staged.
	ok, err := s.Verify([]byte("old"))
	require.NoError(t, err)
	assert.True(t, ok)

	pending, found, err := s.Pending()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, digest, pending)

	require.NoError(t, s.Promote())

	ok, err = s.Verify([]byte("new"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err = s.Pending()
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, s.Promote(), ErrNoPending)
}

func TestStageDiscard(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create([]byte("old")))

	_, err := s.Stage([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, s.Discard())
	require.NoError(t, s.Discard())

	ok, err := s.Verify([]byte("old"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDigestMatchesFileContent(t *testing.T) {
	s := newTestStore(t)
	digest, err := s.Stage([]byte("pw"))
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path() + pendingSuffix)
	require.NoError(t, err)
	assert.Equal(t, Digest(data), digest)
}
