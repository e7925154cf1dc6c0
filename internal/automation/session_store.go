package automation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrCorruptSession is returned when a stored session cannot be decoded.
var ErrCorruptSession = errors.New("saved session is corrupt")

// Cipher encrypts session state at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// StateSource produces the serialized storage state of a browser context.
type StateSource interface {
	StorageState() ([]byte, error)
}

// SessionStore keeps one browser storage-state file per account. Files are
// named by a one-way fingerprint of the account so the identifier never
// appears on disk. Stale files are ignored but never removed.
type SessionStore struct {
	cipher Cipher
	now    func() time.Time
	dir    string
	maxAge time.Duration
}

// NewSessionStore creates a store rooted at dir. A nil cipher stores plain JSON.
func NewSessionStore(dir string, maxAge time.Duration, cipher Cipher) *SessionStore {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &SessionStore{
		cipher: cipher,
		now:    time.Now,
		dir:    dir,
		maxAge: maxAge,
	}
}

// Fingerprint derives a fixed-length, irreversible token from an account id.
func Fingerprint(accountID string) string {
	sum := sha256.Sum256([]byte(accountID))
	return hex.EncodeToString(sum[:])
}

// Path returns the state file location for an account.
func (s *SessionStore) Path(accountID string) string {
	return filepath.Join(s.dir, "airwallex-"+Fingerprint(accountID)+".json")
}

// IsFresh reports whether saved state exists and is younger than the max age.
func (s *SessionStore) IsFresh(accountID string) bool {
	info, err := os.Stat(s.Path(accountID))
	if err != nil {
		return false
	}
	return s.now().Sub(info.ModTime()) < s.maxAge
}

// Load returns the saved storage state for an account.
func (s *SessionStore) Load(accountID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(accountID))
	if err != nil {
		return nil, err
	}

	if s.cipher != nil {
		plain, err := s.cipher.Decrypt(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		data = []byte(plain)
	}

	if !json.Valid(data) {
		return nil, ErrCorruptSession
	}
	return data, nil
}

// Save overwrites the stored state for an account with the current state of src.
func (s *SessionStore) Save(src StateSource, accountID string) error {
	state, err := src.StorageState()
	if err != nil {
		return fmt.Errorf("read storage state: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data := state
	if s.cipher != nil {
		enc, err := s.cipher.Encrypt(string(state))
		if err != nil {
			return fmt.Errorf("encrypt storage state: %w", err)
		}
		data = []byte(enc)
	}

	path := s.Path(accountID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
