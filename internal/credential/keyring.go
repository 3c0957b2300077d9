package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/procurement-inbox/internal/model"
)

const serviceName = "procure"

// mailboxKeyPrefix namespaces IMAP passwords by login name.
const mailboxKeyPrefix = "imap:"

// Store reads and writes secrets in the system keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the platform keyring, falling back to an
// encrypted file under ~/.config/procure/credentials.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/procure/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("procure-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key. A missing key yields "" and no
// error.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       "procure " + key,
		Description: "procurement inbox credential",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// MailboxKey returns the keyring key holding the IMAP password for username.
func MailboxKey(username string) string {
	return mailboxKeyPrefix + username
}

// FillMailboxPassword loads the IMAP password from the keyring when the
// configuration does not already carry one.
func (s *Store) FillMailboxPassword(cfg *model.MailboxConfig) error {
	if cfg.Password != "" || cfg.Username == "" {
		return nil
	}
	pw, err := s.Get(MailboxKey(cfg.Username))
	if err != nil {
		return err
	}
	cfg.Password = pw
	return nil
}
