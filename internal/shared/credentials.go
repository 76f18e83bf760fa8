package shared

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/joho/godotenv"
)

const (
	keyringService = "bcx"

	// PasswordEnv overrides the IMAP password from the environment or a .env file.
	PasswordEnv = "BCX_IMAP_PASSWORD"
)

// SecretStore saves and loads secrets such as IMAP passwords and OAuth refresh tokens.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// KeyringStore is a [SecretStore] backed by the operating system keychain.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyring opens the OS keychain, falling back to an encrypted file under ~/.bcx
// whose passphrase is read from BCX_KEYRING_PASSWORD.
func OpenKeyring() (*KeyringStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.FileBackend,
		},
		FileDir:          filepath.Join(home, ".bcx", "keyring"),
		FilePasswordFunc: keyring.FixedStringPrompt(os.Getenv("BCX_KEYRING_PASSWORD")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

// NewKeyringStore wraps an already opened [keyring.Keyring].
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (s *KeyringStore) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s not in keyring", ErrMissingCredentials, key)
		}
		return "", fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return string(item.Data), nil
}

func (s *KeyringStore) Set(key, value string) error {
	if err := s.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: "bcx " + key}); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", key, err)
	}
	return nil
}

func (s *KeyringStore) Remove(key string) error {
	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove %s from keyring: %w", key, err)
	}
	return nil
}

// PasswordKey is the keyring key for an account's IMAP password.
func PasswordKey(server, username string) string {
	return fmt.Sprintf("imap:%s:%s", server, username)
}

// RefreshTokenKey is the keyring key for an account's OAuth refresh token.
func RefreshTokenKey(server, username string) string {
	return fmt.Sprintf("oauth:%s:%s", server, username)
}

// LoadEnv loads KEY=value pairs from the given .env files into the process environment.
// Missing files are ignored and existing variables are never overwritten.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ResolvePassword picks the IMAP password from, in order: the explicit value, the
// environment, the secret store, the config file.
func ResolvePassword(explicit string, mail MailConfig, store SecretStore) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(PasswordEnv); env != "" {
		return env, nil
	}
	if store != nil {
		if secret, err := store.Get(PasswordKey(mail.Server, mail.Username)); err == nil && secret != "" {
			return secret, nil
		}
	}
	if mail.Password != "" {
		return mail.Password, nil
	}
	return "", fmt.Errorf("%w: no IMAP password for %s (set %s or run bcx setup password)", ErrMissingCredentials, mail.Username, PasswordEnv)
}
