package master

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost   = 12 // bcrypt work factor for new hashes
	FilePerm      = 0600
	pendingSuffix = ".pending"
)

var (
	ErrMissing   = errors.New("master password record not found")
	ErrCorrupt   = errors.New("master password record is corrupt")
	ErrNoPending = errors.New("no pending master password record")
)

// Store manages the master-password record file
type Store struct {
	path string
	cost int
}

// New creates a Store for the record at path, hashing new passwords with cost
func New(path string, cost int) (*Store, error) {
	if path == "" {
		return nil, errors.New("master password path is empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Store{path: path, cost: cost}, nil
}

// Path returns the location of the record file
func (s *Store) Path() string {
	return s.path
}

func (s *Store) pendingPath() string {
	return s.path + pendingSuffix
}

// Exists reports whether the record file is present and non-empty
func (s *Store) Exists() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat master password record: %w", err)
	}
	return info.Size() > 0, nil
}

// Create hashes password and writes it, replacing any previous record
func (s *Store) Create(password []byte) error {
	return s.write(s.path, password)
}

// Verify checks password against the stored hash. A missing or unreadable
// record is an error, not a mismatch.
func (s *Store) Verify(password []byte) (bool, error) {
	hash, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, ErrMissing
	}
	if err != nil {
		return false, fmt.Errorf("failed to read master password record: %w", err)
	}
	if len(hash) == 0 {
		return false, ErrMissing
	}

	err = bcrypt.CompareHashAndPassword(bytes.TrimSpace(hash), password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
}

// Stage writes the hash of password to the pending record and returns its
// digest. The live record is untouched until Promote.
func (s *Store) Stage(password []byte) ([]byte, error) {
	if err := s.write(s.pendingPath(), password); err != nil {
		return nil, err
	}
	digest, ok, err := s.Pending()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPending
	}
	return digest, nil
}

// Pending returns the digest of the staged record, if there is one
func (s *Store) Pending() ([]byte, bool, error) {
	data, err := os.ReadFile(s.pendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read pending master password record: %w", err)
	}
	return Digest(data), true, nil
}

// Promote atomically replaces the live record with the staged one
func (s *Store) Promote() error {
	if _, err := os.Stat(s.pendingPath()); errors.Is(err, os.ErrNotExist) {
		return ErrNoPending
	}
	if err := atomic.ReplaceFile(s.pendingPath(), s.path); err != nil {
		return fmt.Errorf("failed to promote master password record: %w", err)
	}
	return nil
}

// Discard removes the staged record, if any
func (s *Store) Discard() error {
	err := os.Remove(s.pendingPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to discard pending master password record: %w", err)
	}
	return nil
}

// Digest identifies a record's content without revealing the hash itself
func Digest(record []byte) []byte {
	sum := sha256.Sum256(record)
	return sum[:]
}

func (s *Store) write(path string, password []byte) error {
	if len(password) == 0 {
		return errors.New("master password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword(password, s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash master password: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(hash)); err != nil {
		return fmt.Errorf("failed to write master password record: %w", err)
	}
	if err := os.Chmod(path, FilePerm); err != nil {
		return fmt.Errorf("failed to secure master password record: %w", err)
	}
	return nil
}
