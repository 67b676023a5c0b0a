// Package envelope encrypts notification bodies with AES-256-GCM under a key
// derived per nonce from a long-lived master key.
//
// The nonce doubles as the PBKDF2 salt and is transmitted next to the
// ciphertext, so any holder of the master key can always re-derive the key.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeyLength   = 32 // AES-256
	NonceLength = 12
	TagLength   = 16
	Iterations  = 10000

	cacheSize = 100
	cacheTTL  = time.Hour
)

var (
	// ErrDecrypt is returned for any failure to recover plaintext.
	ErrDecrypt = errors.New("envelope: decryption failed")
	// ErrMissingKey is returned when no master key is supplied.
	ErrMissingKey = errors.New("envelope: missing master key")
)

// Sealed is an encrypted body plus the nonce needed to open it, both base64.
type Sealed struct {
	Content string `json:"encryptedContent"`
	Nonce   string `json:"nonce"`
}

// Crypter encrypts and decrypts with a memoized key derivation.
// It is safe for concurrent use.
type Crypter struct {
	keys *expirable.LRU[string, []byte]
}

// New returns a Crypter with a 100-entry, one-hour derived-key cache.
func New() *Crypter {
	return &Crypter{keys: expirable.NewLRU[string, []byte](cacheSize, nil, cacheTTL)}
}

var defaultCrypter = New()

// Encrypt seals plaintext with the package-level Crypter.
func Encrypt(plaintext, masterKey string) (Sealed, error) {
	return defaultCrypter.Encrypt(plaintext, masterKey)
}

// Decrypt opens a sealed body with the package-level Crypter.
func Decrypt(content, masterKey, nonce string) (string, error) {
	return defaultCrypter.Decrypt(content, masterKey, nonce)
}

// Encrypt seals plaintext under a key derived from masterKey and a fresh nonce.
func (c *Crypter) Encrypt(plaintext, masterKey string) (Sealed, error) {
	if masterKey == "" {
		return Sealed{}, ErrMissingKey
	}
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("envelope: read nonce: %w", err)
	}

	aead, err := c.aead(masterKey, nonce)
	if err != nil {
		return Sealed{}, err
	}
	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return Sealed{
		Content: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:   base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt opens content. Every failure, including a tampered tag, wraps ErrDecrypt.
func (c *Crypter) Decrypt(content, masterKey, nonce string) (string, error) {
	if masterKey == "" {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, ErrMissingKey)
	}
	rawNonce, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce: %v", ErrDecrypt, err)
	}
	if len(rawNonce) != NonceLength {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecrypt, NonceLength, len(rawNonce))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("%w: malformed content: %v", ErrDecrypt, err)
	}
	if len(ciphertext) < TagLength {
		return "", fmt.Errorf("%w: content shorter than tag", ErrDecrypt)
	}

	aead, err := c.aead(masterKey, rawNonce)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := aead.Open(nil, rawNonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

func (c *Crypter) aead(masterKey string, nonce []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.deriveKey(masterKey, nonce))
	if err != nil {
		return nil, fmt.Errorf("envelope: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceLength)
	if err != nil {
		return nil, fmt.Errorf("envelope: new gcm: %w", err)
	}
	return aead, nil
}

// deriveKey runs PBKDF2-SHA256 with the nonce as salt. The cache key hashes the
// master key so raw secrets are not held as map keys.
func (c *Crypter) deriveKey(masterKey string, salt []byte) []byte {
	sum := sha256.Sum256([]byte(masterKey))
	cacheKey := hex.EncodeToString(sum[:]) + ":" + base64.StdEncoding.EncodeToString(salt)
	if key, ok := c.keys.Get(cacheKey); ok {
		return key
	}
	key := pbkdf2.Key([]byte(masterKey), salt, Iterations, KeyLength, sha256.New)
	c.keys.Add(cacheKey, key)
	return key
}

// Purge drops every cached derived key.
func (c *Crypter) Purge() {
	c.keys.Purge()
}
