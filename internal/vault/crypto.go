package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	saltSize = 16

	// DefaultBcryptCost is the work factor for stored credential hashes.
	DefaultBcryptCost = 12

	keyInfo = "startupmonkey prober credential encryption v1"
)

var (
	ErrMissingKey        = errors.New("vault: encryption key is required")
	ErrCorruptSecret     = errors.New("vault: encrypted credential is corrupt")
	ErrInvalidBcryptCost = fmt.Errorf("vault: bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
)

// Hasher produces the irreversible, salted credential hash kept for
// verification and audit.
type Hasher struct {
	cost int
}

func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, ErrInvalidBcryptCost
	}
	return &Hasher{cost: cost}, nil
}

// Hash derives a fresh random salt and returns the bcrypt hash of the
// HMAC-SHA256(salt, plaintext) digest, plus the encoded salt.
func (h *Hasher) Hash(plaintext string) (hash string, salt string, err error) {
	raw := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	out, err := bcrypt.GenerateFromPassword(peppered(raw, plaintext), h.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash credential: %w", err)
	}

	return string(out), base64.RawStdEncoding.EncodeToString(raw), nil
}

func (h *Hasher) Verify(hash, salt, plaintext string) bool {
	raw, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), peppered(raw, plaintext)) == nil
}

// peppered keeps bcrypt's input at a fixed 44 bytes regardless of
// credential length.
func peppered(salt []byte, plaintext string) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(plaintext))
	return []byte(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// Cipher is the reversible path: XChaCha20-Poly1305 keyed from the process
// secret, used only to reconnect to a target.
type Cipher struct {
	key []byte
}

func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext bound to aad (the endpoint id), so a blob copied
// onto another record does not decrypt.
func (c *Cipher) Seal(plaintext, aad string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Open(blob, aad string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil || len(raw) < aead.NonceSize() {
		return "", ErrCorruptSecret
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return "", ErrCorruptSecret
	}
	return string(plain), nil
}
