// Package cryptox implements the cryptographic capability of the vault
// engine: argon2id hashing and key derivation plus AES-256-GCM authenticated
// encryption. Everything is exposed behind the Provider interface so tests
// and callers with special requirements can substitute their own primitives.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters following OWASP recommendations.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4

	// KeyLength is the length of derived/generated keys in bytes (AES-256).
	KeyLength = 32

	// SaltLength is the length of random salts in bytes.
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes.
	NonceLength = 12
)

var (
	// ErrInvalidKeyLength indicates the key is not KeyLength bytes.
	ErrInvalidKeyLength = errors.New("cryptox: invalid key length")

	// ErrInvalidNonceLength indicates the nonce is not NonceLength bytes.
	ErrInvalidNonceLength = errors.New("cryptox: invalid nonce length")

	// ErrDecryptionFailed indicates decryption or authentication-tag
	// verification failed. The error carries no plaintext or key material.
	ErrDecryptionFailed = errors.New("cryptox: decryption failed")
)

// Provider is the opaque cryptographic capability consumed by the vault
// services. Implementations must be safe for concurrent use.
type Provider interface {
	// HashSecret hashes a low-entropy secret (password, answer, backup
	// code) with a fresh random salt and returns digest and salt.
	HashSecret(secret []byte) (digest, salt []byte, err error)

	// VerifySecret reports whether secret matches digest under salt.
	// The comparison is constant-time.
	VerifySecret(secret, digest, salt []byte) bool

	// DeriveKey stretches a secret into a KeyLength-byte encryption key.
	DeriveKey(secret, salt []byte) []byte

	// GenerateKey returns a fresh random KeyLength-byte key.
	GenerateKey() ([]byte, error)

	// Encrypt seals plaintext under key, returning ciphertext (with the
	// authentication tag appended) and the random nonce used.
	Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error)

	// Decrypt opens ciphertext and verifies its authentication tag.
	// Tampered or wrong-key input yields ErrDecryptionFailed.
	Decrypt(key, ciphertext, nonce []byte) ([]byte, error)
}

// AESGCMProvider is the default Provider: argon2id for hashing and key
// derivation, AES-256-GCM for encryption.
type AESGCMProvider struct{}

// NewAESGCMProvider returns the default crypto provider.
func NewAESGCMProvider() *AESGCMProvider {
	return &AESGCMProvider{}
}

func (p *AESGCMProvider) HashSecret(secret []byte) ([]byte, []byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("cryptox: salt generation: %w", err)
	}
	return p.DeriveKey(secret, salt), salt, nil
}

func (p *AESGCMProvider) VerifySecret(secret, digest, salt []byte) bool {
	candidate := p.DeriveKey(secret, salt)
	return subtle.ConstantTimeCompare(candidate, digest) == 1
}

func (p *AESGCMProvider) DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argon2Time, argon2Memory, argon2Threads, KeyLength)
}

func (p *AESGCMProvider) GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptox: key generation: %w", err)
	}
	return key, nil
}

func (p *AESGCMProvider) Encrypt(key, plaintext []byte) ([]byte, []byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("cryptox: nonce generation: %w", err)
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (p *AESGCMProvider) Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// never wrap the underlying error: it must not carry material
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: cipher init: %w", err)
	}
	return cipher.NewGCM(block)
}
