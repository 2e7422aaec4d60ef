package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/velist/velist/internal/models"
	"golang.org/x/crypto/pbkdf2"
)

const (
	cipherSaltSize  = 16
	cipherNonceSize = 12
	cipherTagSize   = 16
	cipherKeySize   = 32

	// KDFIterations is the PBKDF2-SHA256 work factor for at-rest secrets.
	KDFIterations = 100000

	envelopeSeparator = ":"
)

// SecretCipher encrypts TOTP secrets at rest with AES-256-GCM under a key
// derived from a passphrase. Envelopes have the form
// base64(salt):base64(nonce):base64(tag):base64(ciphertext).
type SecretCipher struct {
	passphrase []byte
	iterations int
}

func NewSecretCipher(passphrase string) (*SecretCipher, error) {
	return newSecretCipher(passphrase, KDFIterations)
}

func newSecretCipher(passphrase string, iterations int) (*SecretCipher, error) {
	if passphrase == "" {
		return nil, errors.New("secret cipher passphrase cannot be empty")
	}
	if iterations < 1 {
		return nil, fmt.Errorf("invalid KDF iteration count %d", iterations)
	}
	return &SecretCipher{passphrase: []byte(passphrase), iterations: iterations}, nil
}

// EncryptSecret encrypts plaintext under passphrase with the production work factor.
func EncryptSecret(plaintext, passphrase string) (string, error) {
	c, err := NewSecretCipher(passphrase)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plaintext)
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(envelope, passphrase string) (string, error) {
	c, err := NewSecretCipher(passphrase)
	if err != nil {
		return "", err
	}
	return c.Decrypt(envelope)
}

// Encrypt uses a fresh salt and nonce on every call, so equal inputs never
// produce equal envelopes.
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, cipherSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, cipherNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-cipherTagSize], sealed[len(sealed)-cipherTagSize:]

	enc := base64.StdEncoding
	return strings.Join([]string{
		enc.EncodeToString(salt),
		enc.EncodeToString(nonce),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	}, envelopeSeparator), nil
}

// Decrypt returns ErrCiphertextFormat for a structurally invalid envelope and
// ErrCiphertextIntegrity when authentication fails. A wrong passphrase and a
// tampered ciphertext take the same path.
func (c *SecretCipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, envelopeSeparator)
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: expected 4 segments, got %d", models.ErrCiphertextFormat, len(parts))
	}

	salt, err := decodeSegment(parts[0], "salt", cipherSaltSize)
	if err != nil {
		return "", err
	}
	nonce, err := decodeSegment(parts[1], "nonce", cipherNonceSize)
	if err != nil {
		return "", err
	}
	tag, err := decodeSegment(parts[2], "tag", cipherTagSize)
	if err != nil {
		return "", err
	}
	ciphertext, err := decodeSegment(parts[3], "ciphertext", -1)
	if err != nil {
		return "", err
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", models.ErrCiphertextIntegrity
	}
	return string(plaintext), nil
}

func (c *SecretCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, c.iterations, cipherKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, cipherNonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// decodeSegment decodes one base64 segment. wantLen < 0 accepts any length.
func decodeSegment(segment, name string, wantLen int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", models.ErrCiphertextFormat, name)
	}
	if wantLen >= 0 && len(b) != wantLen {
		return nil, fmt.Errorf("%w: %s must be %d bytes, got %d", models.ErrCiphertextFormat, name, wantLen, len(b))
	}
	return b, nil
}
