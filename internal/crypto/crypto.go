package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize          = 16     // Per-record salt size in bytes
	KeySize           = 32     // AES-256 key size
	NonceSize         = 12     // GCM nonce size
	TagSize           = 16     // GCM authentication tag size
	DefaultIterations = 210000 // Default PBKDF2 iterations (OWASP minimum)
	MinIterations     = 10000  // Lowest iteration count accepted for derivation
)

// Overhead is the number of bytes Encrypt adds to a plaintext.
const Overhead = SaltSize + NonceSize + TagSize

var (
	ErrInvalidInput = errors.New("invalid key derivation input")
	ErrAuthFailed   = errors.New("authentication failed")
)

// DeriveKey derives a KeySize key from password and a SaltSize salt.
// The same inputs always produce the same key.
func DeriveKey(password, salt []byte, iterations int) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: empty password", ErrInvalidInput)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidInput, SaltSize, len(salt))
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d iterations is below the minimum of %d", ErrInvalidInput, iterations, MinIterations)
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}

// Cipher encrypts and decrypts individual records under a password.
// It holds no key material; a key is derived for each call.
type Cipher struct {
	Iterations int
}

// NewCipher creates a Cipher using the given PBKDF2 iteration count
func NewCipher(iterations int) (*Cipher, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d iterations is below the minimum of %d", ErrInvalidInput, iterations, MinIterations)
	}
	return &Cipher{Iterations: iterations}, nil
}

// Encrypt seals plaintext under a key derived from password and a fresh salt.
// The returned blob is salt || nonce || ciphertext || tag.
func (c *Cipher) Encrypt(plaintext, password []byte) ([]byte, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := DeriveKey(password, salt, c.Iterations)
	if err != nil {
		return nil, err
	}
	enc := NewEncryptor(key)
	defer enc.Destroy()

	sealed, err := enc.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, SaltSize+len(sealed))
	copy(blob, salt)
	copy(blob[SaltSize:], sealed)
	return blob, nil
}

// Decrypt opens a blob produced by Encrypt. A wrong or empty password and a
// damaged blob all yield ErrAuthFailed.
func (c *Cipher) Decrypt(blob, password []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, ErrAuthFailed
	}

	key, err := DeriveKey(password, blob[:SaltSize], c.Iterations)
	if err != nil {
		return nil, ErrAuthFailed
	}
	enc := NewEncryptor(key)
	defer enc.Destroy()

	return enc.Decrypt(blob[SaltSize:])
}

// Encryptor provides authenticated encryption under a fixed key
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new encryptor with the given key
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{
		key: key,
	}
}

func (e *Encryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext using AES-256-GCM, returning nonce || ciphertext || tag
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts nonce || ciphertext || tag using AES-256-GCM
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrAuthFailed
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
