// Package credential keeps the IMAP password out of the settings file.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "feedmail"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = keyring.ErrKeyNotFound

// Store reads and writes account passwords.
type Store struct {
	ring keyring.Keyring
}

// Open returns the store backed by the OS keyring. The file backend in dir
// is the last resort.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("feedmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// key namespaces passwords per account.
func key(server, user string) string {
	return "imap:" + user + "@" + server
}

// Get retrieves the password of user on server.
func (s *Store) Get(server, user string) (string, error) {
	item, err := s.ring.Get(key(server, user))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting password for %s: %w", user, err)
	}
	return string(item.Data), nil
}

// Set stores the password of user on server.
func (s *Store) Set(server, user, password string) error {
	err := s.ring.Set(keyring.Item{
		Key:         key(server, user),
		Data:        []byte(password),
		Label:       "feedmail " + user,
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting password for %s: %w", user, err)
	}
	return nil
}

// Delete removes the password of user on server.
func (s *Store) Delete(server, user string) error {
	if err := s.ring.Remove(key(server, user)); err != nil {
		return fmt.Errorf("deleting password for %s: %w", user, err)
	}
	return nil
}
