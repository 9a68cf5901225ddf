package core

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/slog"

	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/logging"
	"github.com/illarion/credvault/internal/storage"
)

// Store is the table of named, encrypted credentials. It encrypts entries on
// the way in and decrypts them on the way out; the backend only ever sees
// blobs.
type Store struct {
	backend storage.Backend
	cipher  *crypto.Cipher
	log     *slog.Logger
}

// NewStore creates a Store over backend using cipher for payloads
func NewStore(backend storage.Backend, cipher *crypto.Cipher, log *slog.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{backend: backend, cipher: cipher, log: log}
}

// Exists reports whether a credential named name is stored
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	found, err := s.backend.Exists(ctx, name)
	if err != nil {
		return false, mapError("exists", err)
	}
	return found, nil
}

// Insert encrypts entries under password and stores them as a new credential
func (s *Store) Insert(ctx context.Context, name string, entries Entries, password []byte) (*Credential, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := entries.Validate(); err != nil {
		return nil, err
	}

	found, err := s.backend.Exists(ctx, name)
	if err != nil {
		return nil, mapError("insert", err)
	}
	if found {
		return nil, fmt.Errorf("insert %q: %w", name, ErrDuplicateName)
	}

	blob, err := s.seal(entries, password)
	if err != nil {
		return nil, mapError("insert", err)
	}

	id, err := s.backend.Insert(ctx, name, blob)
	if err != nil {
		return nil, mapError("insert", err)
	}

	s.log.Debug("credential inserted", "id", id, "name", name, "entries", len(entries))
	return &Credential{ID: id, Name: name, Entries: entries.Clone()}, nil
}

// Get returns the named credential decrypted, or nil if it does not exist
func (s *Store) Get(ctx context.Context, name string, password []byte) (*Credential, error) {
	rec, err := s.backend.Get(ctx, name)
	if err != nil {
		return nil, mapError("get", err)
	}
	if rec == nil {
		return nil, nil
	}
	return s.open(*rec, password)
}

// GetAll returns every credential decrypted, in insertion order. If any row
// fails to decrypt the whole call fails.
func (s *Store) GetAll(ctx context.Context, password []byte) ([]Credential, error) {
	records, err := s.backend.List(ctx)
	if err != nil {
		return nil, mapError("list", err)
	}

	credentials := make([]Credential, 0, len(records))
	for _, rec := range records {
		c, err := s.open(rec, password)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, *c)
	}
	return credentials, nil
}

// Names returns stored credential names in insertion order without
// decrypting anything.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	records, err := s.backend.List(ctx)
	if err != nil {
		return nil, mapError("list", err)
	}
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
	}
	return names, nil
}

// Update looks up the credential named name and replaces its entries, and
// its name when newName is non-empty. Name and entries change together or
// not at all.
func (s *Store) Update(ctx context.Context, name, newName string, entries Entries, password []byte) error {
	rec, err := s.backend.Get(ctx, name)
	if err != nil {
		return mapError("update", err)
	}
	if rec == nil {
		return fmt.Errorf("update %q: %w", name, ErrNotFound)
	}
	return s.update(ctx, rec.ID, rec.Name, newName, entries, password)
}

// UpdateCredential is Update for a credential already fetched by the caller.
// The row is resolved by id, so a stale Name on c does not matter.
func (s *Store) UpdateCredential(ctx context.Context, c *Credential, newName string, entries Entries, password []byte) error {
	rec, err := s.backend.GetByID(ctx, c.ID)
	if err != nil {
		return mapError("update", err)
	}
	if rec == nil {
		return fmt.Errorf("update %q: %w", c.Name, ErrNotFound)
	}
	return s.update(ctx, rec.ID, rec.Name, newName, entries, password)
}

func (s *Store) update(ctx context.Context, id uint64, current, newName string, entries Entries, password []byte) error {
	name := current
	if newName != "" && newName != current {
		if err := ValidateName(newName); err != nil {
			return err
		}
		taken, err := s.backend.Exists(ctx, newName)
		if err != nil {
			return mapError("update", err)
		}
		if taken {
			return fmt.Errorf("update %q: rename to %q: %w", current, newName, ErrDuplicateName)
		}
		name = newName
	}
	if err := entries.Validate(); err != nil {
		return err
	}

	blob, err := s.seal(entries, password)
	if err != nil {
		return mapError("update", err)
	}

	if err := s.backend.Update(ctx, storage.Record{ID: id, Name: name, Blob: blob}); err != nil {
		return mapError("update", err)
	}

	s.log.Debug("credential updated", "id", id, "name", name, "renamed", name != current)
	return nil
}

// Delete removes the named credential
func (s *Store) Delete(ctx context.Context, name string) error {
	rec, err := s.backend.Get(ctx, name)
	if err != nil {
		return mapError("delete", err)
	}
	if rec == nil {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}
	return s.delete(ctx, rec.ID, rec.Name)
}

// DeleteCredential removes a credential already fetched by the caller
func (s *Store) DeleteCredential(ctx context.Context, c *Credential) error {
	return s.delete(ctx, c.ID, c.Name)
}

func (s *Store) delete(ctx context.Context, id uint64, name string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return mapError(fmt.Sprintf("delete %q", name), err)
	}
	s.log.Debug("credential deleted", "id", id, "name", name)
	return nil
}

// reseal encrypts every credential's entries under password, keyed by id.
// Nothing is written.
func (s *Store) reseal(credentials []Credential, password []byte) (map[uint64][]byte, error) {
	blobs := make(map[uint64][]byte, len(credentials))
	for _, c := range credentials {
		blob, err := s.seal(c.Entries, password)
		if err != nil {
			return nil, mapError(fmt.Sprintf("re-encrypt %q", c.Name), err)
		}
		blobs[c.ID] = blob
	}
	return blobs, nil
}

// seal serializes entries to their canonical JSON form and encrypts them
func (s *Store) seal(entries Entries, password []byte) ([]byte, error) {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entries: %w", err)
	}
	defer crypto.ClearBytes(plaintext)
	return s.cipher.Encrypt(plaintext, password)
}

// open decrypts a stored row into a Credential
func (s *Store) open(rec storage.Record, password []byte) (*Credential, error) {
	plaintext, err := s.cipher.Decrypt(rec.Blob, password)
	if err != nil {
		return nil, mapError(fmt.Sprintf("decrypt %q", rec.Name), err)
	}
	defer crypto.ClearBytes(plaintext)

	var entries Entries
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("decode %q: %w: %v", rec.Name, ErrStorage, err)
	}
	return &Credential{ID: rec.ID, Name: rec.Name, Entries: entries}, nil
}
