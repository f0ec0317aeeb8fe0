package transport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// credFileName is the blob file kept inside each session's directory.
const credFileName = "creds.json"

// FileStore is a CredentialStore keeping one blob per session under
// <dir>/<sessionID>/creds.json.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("transport: credential dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("transport: create credential dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load returns the stored credentials for sessionID, or nil when none exist.
func (s *FileStore) Load(sessionID string) (*Credentials, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: load credentials for %s: %w", sessionID, err)
	}
	return &Credentials{Data: data}, nil
}

// Save writes the credentials for sessionID, creating its directory if needed.
func (s *FileStore) Save(sessionID string, creds *Credentials) error {
	if creds == nil {
		return errors.New("transport: credentials must not be nil")
	}
	dir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("transport: create session dir for %s: %w", sessionID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, credFileName), creds.Data, 0o600); err != nil {
		return fmt.Errorf("transport: save credentials for %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes the session's credential directory. Absent credentials are not an error.
func (s *FileStore) Delete(sessionID string) error {
	if err := os.RemoveAll(filepath.Join(s.dir, sessionID)); err != nil {
		return fmt.Errorf("transport: delete credentials for %s: %w", sessionID, err)
	}
	return nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID, credFileName)
}
