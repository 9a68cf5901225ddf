package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/illarion/credvault/internal/crypto"
)

// Session is an authenticated view of the vault. It keeps a private copy of
// the master password until Close.
type Session struct {
	vault *Vault

	mu       sync.Mutex
	password []byte
}

func newSession(v *Vault, password []byte) *Session {
	held := make([]byte, len(password))
	copy(held, password)
	return &Session{vault: v, password: held}
}

// secret returns the held password; callers hold s.mu
func (s *Session) secret() ([]byte, error) {
	if s.password == nil {
		return nil, ErrSessionClosed
	}
	return s.password, nil
}

// Add stores a new credential
func (s *Session) Add(ctx context.Context, name string, entries Entries) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, err := s.secret()
	if err != nil {
		return nil, err
	}
	return s.vault.store.Insert(ctx, name, entries, pw)
}

// Get returns the named credential. A missing name is ErrNotFound.
func (s *Session) Get(ctx context.Context, name string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, err := s.secret()
	if err != nil {
		return nil, err
	}
	c, err := s.vault.store.Get(ctx, name, pw)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return c, nil
}

// List returns every credential in insertion order
func (s *Session) List(ctx context.Context) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, err := s.secret()
	if err != nil {
		return nil, err
	}
	return s.vault.store.GetAll(ctx, pw)
}

// Names returns credential names in insertion order
func (s *Session) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.secret(); err != nil {
		return nil, err
	}
	return s.vault.store.Names(ctx)
}

func (s *Session) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.secret(); err != nil {
		return false, err
	}
	return s.vault.store.Exists(ctx, name)
}

// Update replaces the entries of the named credential, renaming it when
// newName is non-empty.
func (s *Session) Update(ctx context.Context, name, newName string, entries Entries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, err := s.secret()
	if err != nil {
		return err
	}
	return s.vault.store.Update(ctx, name, newName, entries, pw)
}

// UpdateCredential is Update for a credential returned by Get or List
func (s *Session) UpdateCredential(ctx context.Context, c *Credential, newName string, entries Entries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, err := s.secret()
	if err != nil {
		return err
	}
	return s.vault.store.UpdateCredential(ctx, c, newName, entries, pw)
}

func (s *Session) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.secret(); err != nil {
		return err
	}
	return s.vault.store.Delete(ctx, name)
}

func (s *Session) DeleteCredential(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.secret(); err != nil {
		return err
	}
	return s.vault.store.DeleteCredential(ctx, c)
}

// RotatePassword changes the master password. oldPassword is checked against
// the master record, not against the session. Once the records are committed
// under newPassword the session holds newPassword, even if the error is
// reported for a later step.
func (s *Session) RotatePassword(ctx context.Context, oldPassword, newPassword []byte, observers ...RotationObserver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.secret(); err != nil {
		return err
	}
	committed, err := s.vault.rotate(ctx, oldPassword, newPassword, observers)
	if committed {
		crypto.ClearBytes(s.password)
		s.password = make([]byte, len(newPassword))
		copy(s.password, newPassword)
	}
	return err
}

// Close zeroes the held password. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password != nil {
		crypto.ClearBytes(s.password)
		s.password = nil
	}
}
