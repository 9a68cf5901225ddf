package storage

import (
	"context"
	"errors"
	"fmt"
)

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

var (
	ErrNameTaken     = errors.New("name already in use")
	ErrNotFound      = errors.New("record not found")
	ErrLocked        = errors.New("database is locked by another process")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Record is one stored credential row. Blob is the encrypted entries payload.
type Record struct {
	ID   uint64
	Name string
	Blob []byte
}

// Backend is a transactional store of credential rows keyed by a unique name.
type Backend interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Insert adds a row and returns its id. ErrNameTaken if name is in use.
	Insert(ctx context.Context, name string, blob []byte) (uint64, error)
	// Get returns nil, nil when no row has that name.
	Get(ctx context.Context, name string) (*Record, error)
	// GetByID returns nil, nil when no row has that id.
	GetByID(ctx context.Context, id uint64) (*Record, error)
	// List returns all rows in ascending id order from a single read.
	List(ctx context.Context) ([]Record, error)
	// Update replaces name and blob of an existing row in one transaction.
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id uint64) error
	// ReplaceBlobs rewrites the blobs of the given rows and applies the meta
	// changes in one transaction. Nothing is written if any id is missing.
	ReplaceBlobs(ctx context.Context, blobs map[uint64][]byte, meta map[string][]byte) error
	// Meta returns nil, nil for an unset key.
	Meta(ctx context.Context, key string) ([]byte, error)
	// SetMeta stores value under key; a nil value deletes the key.
	SetMeta(ctx context.Context, key string, value []byte) error
	Compact(ctx context.Context) error
	Close() error
}

// Open opens the backend selected by driver at path, creating it if needed
func Open(driver, path string) (Backend, error) {
	switch driver {
	case DriverBolt, "":
		return OpenBolt(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
