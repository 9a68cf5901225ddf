package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/illarion/credvault/internal/config"
	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/storage"
)

var (
	masterPassword = []byte("correct horse battery staple")
	otherPassword  = []byte("Tr0ub4dor&3")
)

func forEachDriver(t *testing.T, fn func(t *testing.T, driver string)) {
	t.Helper()
	for _, driver := range []string{storage.DriverBolt, storage.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			fn(t, driver)
		})
	}
}

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Dir:           dir,
		MasterPath:    filepath.Join(dir, "app.key"),
		StorePath:     filepath.Join(dir, "app.db"),
		Driver:        driver,
		KDFIterations: crypto.MinIterations,
		BcryptCost:    bcrypt.MinCost,
		LogLevel:      "warn",
		LogFormat:     "text",
	}
}

func openVault(t *testing.T, cfg *config.Config) *Vault {
	t.Helper()
	v, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

// openSession initializes a fresh vault and authenticates against it
func openSession(t *testing.T, driver string) (*Vault, *Session, *config.Config) {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t, driver)
	v := openVault(t, cfg)
	require.NoError(t, v.Initialize(ctx, masterPassword))
	s, err := v.Authenticate(ctx, masterPassword)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return v, s, cfg
}

func newTestStore(t *testing.T, driver string) (*Store, storage.Backend) {
	t.Helper()
	backend, err := storage.Open(driver, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	cipher, err := crypto.NewCipher(crypto.MinIterations)
	require.NoError(t, err)
	return NewStore(backend, cipher, nil), backend
}

func github() Entries {
	return Entries{{"username", "octocat"}, {"token", "ghp_secret"}}
}
