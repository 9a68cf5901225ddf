package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// Bucket names
var (
	ConfigBucket      = []byte("config")      // Store settings and markers - unencrypted
	CredentialsBucket = []byte("credentials") // id -> row with encrypted entries
	NamesBucket       = []byte("names")       // Unique name -> id index
)

// Config keys
var (
	ConfigVersion = []byte("version")
	ConfigCreated = []byte("created")
)

const (
	boltFilePerm    = 0600
	boltLockTimeout = time.Second

	compactSuffix = ".compact"
	backupSuffix  = ".backup"
)

// boltRow is the stored form of a credential row
type boltRow struct {
	Name    string `json:"name"`
	Entries []byte `json:"entries"`
}

// Bolt provides BBolt-based credential storage
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates a bolt credential database
func OpenBolt(path string) (*Bolt, error) {
	if err := restoreBackup(path); err != nil {
		return nil, err
	}
	db, err := openBoltFile(path)
	if err != nil {
		return nil, err
	}

	s := &Bolt{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// restoreBackup puts back the copy Compact moved aside when a crash left no
// database at path.
func restoreBackup(path string) error {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	backupPath := path + backupSuffix
	if _, err := os.Stat(backupPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat backup: %w", err)
	}
	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return nil
}

func openBoltFile(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltLockTimeout})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// initialize creates the bucket structure if it is not there yet
func (s *Bolt) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, CredentialsBucket, NamesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}
		created, _ := time.Now().MarshalBinary()
		return config.Put(ConfigCreated, created)
	})
}

// Close closes the database
func (s *Bolt) Close() error {
	return s.db.Close()
}

func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeRow(id uint64, data []byte) (*Record, error) {
	var row boltRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row %d: %w", id, err)
	}
	// json.Unmarshal allocates fresh slices, so the record outlives the transaction
	return &Record{ID: id, Name: row.Name, Blob: row.Entries}, nil
}

func putRow(b *bolt.Bucket, rec Record) error {
	data, err := json.Marshal(boltRow{Name: rec.Name, Entries: rec.Blob})
	if err != nil {
		return err
	}
	return b.Put(itob(rec.ID), data)
}

// Exists reports whether a row with the given name exists
func (s *Bolt) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(NamesBucket).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

// Insert adds a new row under a fresh id
func (s *Bolt) Insert(ctx context.Context, name string, blob []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(NamesBucket)
		if names.Get([]byte(name)) != nil {
			return ErrNameTaken
		}

		creds := tx.Bucket(CredentialsBucket)
		seq, err := creds.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate id: %w", err)
		}
		id = seq

		if err := putRow(creds, Record{ID: id, Name: name, Blob: blob}); err != nil {
			return err
		}
		return names.Put([]byte(name), itob(id))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get retrieves a row by name
func (s *Bolt) Get(ctx context.Context, name string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(NamesBucket).Get([]byte(name))
		if idBytes == nil {
			return nil
		}
		id := binary.BigEndian.Uint64(idBytes)
		data := tx.Bucket(CredentialsBucket).Get(idBytes)
		if data == nil {
			return fmt.Errorf("name index points to missing row %d", id)
		}
		var err error
		rec, err = decodeRow(id, data)
		return err
	})
	return rec, err
}

// GetByID retrieves a row by id
func (s *Bolt) GetByID(ctx context.Context, id uint64) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(CredentialsBucket).Get(itob(id))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRow(id, data)
		return err
	})
	return rec, err
}

// List returns every row in id order
func (s *Bolt) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(CredentialsBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeRow(binary.BigEndian.Uint64(k), v)
			if err != nil {
				return err
			}
			records = append(records, *rec)
			return nil
		})
	})
	return records, err
}

// Update renames and re-blobs an existing row
func (s *Bolt) Update(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		creds := tx.Bucket(CredentialsBucket)
		data := creds.Get(itob(rec.ID))
		if data == nil {
			return ErrNotFound
		}
		current, err := decodeRow(rec.ID, data)
		if err != nil {
			return err
		}

		if current.Name != rec.Name {
			names := tx.Bucket(NamesBucket)
			if names.Get([]byte(rec.Name)) != nil {
				return ErrNameTaken
			}
			if err := names.Delete([]byte(current.Name)); err != nil {
				return err
			}
			if err := names.Put([]byte(rec.Name), itob(rec.ID)); err != nil {
				return err
			}
		}
		return putRow(creds, rec)
	})
}

// Delete removes a row and its name index entry
func (s *Bolt) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		creds := tx.Bucket(CredentialsBucket)
		data := creds.Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		current, err := decodeRow(id, data)
		if err != nil {
			return err
		}
		if err := tx.Bucket(NamesBucket).Delete([]byte(current.Name)); err != nil {
			return err
		}
		return creds.Delete(itob(id))
	})
}

// ReplaceBlobs rewrites many rows and settings in one transaction
func (s *Bolt) ReplaceBlobs(ctx context.Context, blobs map[uint64][]byte, meta map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		creds := tx.Bucket(CredentialsBucket)
		for id, blob := range blobs {
			data := creds.Get(itob(id))
			if data == nil {
				return fmt.Errorf("%w: id %d", ErrNotFound, id)
			}
			rec, err := decodeRow(id, data)
			if err != nil {
				return err
			}
			rec.Blob = blob
			if err := putRow(creds, *rec); err != nil {
				return err
			}
		}

		config := tx.Bucket(ConfigBucket)
		for key, value := range meta {
			if err := putMeta(config, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func putMeta(config *bolt.Bucket, key string, value []byte) error {
	if value == nil {
		return config.Delete([]byte(key))
	}
	return config.Put([]byte(key), value)
}

// Meta retrieves a store setting
func (s *Bolt) Meta(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		// Make a copy since the slice is only valid during the transaction
		value = append([]byte(nil), data...)
		return nil
	})
	return value, err
}

// SetMeta stores or deletes a store setting
func (s *Bolt) SetMeta(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putMeta(tx.Bucket(ConfigBucket), key, value)
	})
}

// Compact creates a compacted copy of the database, removing unused space.
// Rewritten and deleted rows leave free pages behind until this runs.
func (s *Bolt) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srcPath := s.db.Path()
	tmpPath := srcPath + compactSuffix

	// Leftover from an interrupted run; never merge into it
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale compact database: %w", err)
	}

	dst, err := bolt.Open(tmpPath, boltFilePerm, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets, keeping the id sequence so ids are never reused
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				if err := dstBucket.SetSequence(srcBucket.Sequence()); err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + backupSuffix
	if err := os.Rename(srcPath, backupPath); err != nil {
		os.Remove(tmpPath)
		return s.reopen(srcPath, fmt.Errorf("failed to backup original: %w", err))
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return s.reopen(srcPath, fmt.Errorf("failed to replace database: %w", err))
	}
	os.Remove(backupPath)

	s.db, err = openBoltFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}

// reopen restores the handle after a failed compaction and returns cause
func (s *Bolt) reopen(path string, cause error) error {
	db, err := openBoltFile(path)
	if err != nil {
		return errors.Join(cause, fmt.Errorf("failed to reopen database: %w", err))
	}
	s.db = db
	return cause
}
