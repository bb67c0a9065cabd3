package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// EnvironmentDevelopment is the only environment allowed to run without a configured key.
const EnvironmentDevelopment = "development"

// Config carries the raw key material read from flags or the environment.
type Config struct {
	// Key is the active key, hex encoded.
	Key string
	// Version is the active key version. Defaults to 1.
	Version int
	// Previous lists retired keys as "version:hex" pairs separated by commas.
	Previous    string
	Environment string
}

// NewFromConfig builds a vault from configuration. A missing key is an error outside
// development; in development an ephemeral key is generated.
func NewFromConfig(cfg Config, logger *slog.Logger) (*Vault, error) {
	version := cfg.Version
	if version <= 0 {
		version = 1
	}

	keys := make(map[int][]byte)

	if cfg.Key == "" {
		if cfg.Environment != EnvironmentDevelopment {
			return nil, ErrMissingKey
		}

		key := make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate development key: %w", err)
		}

		logger.Warn("No encryption key configured, using an ephemeral development key; stored credentials will not survive a restart")

		keys[version] = key
	} else {
		key, err := decodeKey(cfg.Key)
		if err != nil {
			return nil, err
		}

		keys[version] = key
	}

	if err := parsePrevious(cfg.Previous, keys); err != nil {
		return nil, err
	}

	return New(version, keys)
}

func parsePrevious(raw string, keys map[int][]byte) error {
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		versionStr, keyHex, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("previous key %q: expected version:hex", entry)
		}

		version, err := strconv.Atoi(versionStr)
		if err != nil || version <= 0 {
			return fmt.Errorf("previous key %q: invalid version", entry)
		}

		if _, exists := keys[version]; exists {
			return fmt.Errorf("%w: %d", ErrDuplicateKeyVersion, version)
		}

		key, err := decodeKey(keyHex)
		if err != nil {
			return fmt.Errorf("previous key version %d: %w", version, err)
		}

		keys[version] = key
	}

	return nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}

	return key, nil
}

// GenerateKey returns a fresh random key, hex encoded.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	return hex.EncodeToString(key), nil
}
