// Package vault encrypts integration secrets at rest with versioned AES-256-GCM keys.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

var (
	// ErrDecryption is returned for any malformed or tampered ciphertext. It never carries
	// the underlying cause.
	ErrDecryption = errors.New("failed to decrypt credential")

	ErrMissingKey          = errors.New("encryption key is not configured")
	ErrInvalidKey          = errors.New("encryption key must be 32 bytes (64 hex characters)")
	ErrUnknownKeyVersion   = errors.New("unknown encryption key version")
	ErrDuplicateKeyVersion = errors.New("duplicate encryption key version")
)

// Vault holds one AEAD per key version. It is safe for concurrent use after construction.
type Vault struct {
	active int
	aeads  map[int]cipher.AEAD
}

// New builds a vault whose active key is keys[active]. Older versions stay available
// for decryption.
func New(active int, keys map[int][]byte) (*Vault, error) {
	if _, ok := keys[active]; !ok {
		return nil, fmt.Errorf("%w: active version %d", ErrUnknownKeyVersion, active)
	}

	aeads := make(map[int]cipher.AEAD, len(keys))

	for version, key := range keys {
		aead, err := newAEAD(key)
		if err != nil {
			return nil, fmt.Errorf("key version %d: %w", version, err)
		}

		aeads[version] = aead
	}

	return &Vault{active: active, aeads: aeads}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	return aead, nil
}

// ActiveVersion returns the key version used for new ciphertexts.
func (v *Vault) ActiveVersion() int {
	return v.active
}

// Encrypt seals plaintext with the active key and returns "ivHex:authTagHex:cipherHex".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := v.aeads[v.active].Seal(nil, iv, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(body), nil
}

// Decrypt opens a ciphertext produced with the active key.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	return v.DecryptVersion(ciphertext, v.active)
}

// DecryptVersion opens a ciphertext produced with the given key version.
func (v *Vault) DecryptVersion(ciphertext string, version int) (string, error) {
	aead, ok := v.aeads[version]
	if !ok {
		return "", ErrDecryption
	}

	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", ErrDecryption
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrDecryption
	}

	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrDecryption
	}

	body, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryption
	}

	plaintext, err := aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", ErrDecryption
	}

	return string(plaintext), nil
}

// EncryptJSON marshals value and encrypts it with the active key.
func (v *Vault) EncryptJSON(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}

	return v.Encrypt(string(raw))
}

// DecryptJSON decrypts a ciphertext sealed with the given key version into out.
func (v *Vault) DecryptJSON(ciphertext string, version int, out any) error {
	plaintext, err := v.DecryptVersion(ciphertext, version)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return ErrDecryption
	}

	return nil
}

// Reencrypt moves a ciphertext from version to the active key.
func (v *Vault) Reencrypt(ciphertext string, version int) (string, int, error) {
	plaintext, err := v.DecryptVersion(ciphertext, version)
	if err != nil {
		return "", 0, err
	}

	sealed, err := v.Encrypt(plaintext)
	if err != nil {
		return "", 0, err
	}

	return sealed, v.active, nil
}

// Hash returns the lowercase hex SHA-256 of value.
func (v *Vault) Hash(value string) string {
	return Hash(value)
}

// Hash returns the lowercase hex SHA-256 of value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))

	return hex.EncodeToString(sum[:])
}
