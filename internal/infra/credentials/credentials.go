// Package credentials persists the access token, refresh token, cached user
// profile, and local PIN hash in a JSON file under the data directory.
// Persistence is best-effort: a write failure keeps the in-memory copy
// authoritative for the session.
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

type fileData struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
	PINHash      string          `json:"pin_hash,omitempty"`
}

// Store is a mutex-guarded credential file.
type Store struct {
	mu   sync.RWMutex
	path string
	data fileData
}

// Open loads the credential file at path, creating parent directories. A
// missing file yields an empty store; a corrupt file is discarded.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return s, err
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.data = fileData{}
	}
	return s, nil
}

// AccessToken returns the stored access token ("" if none).
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AccessToken
}

// RefreshToken returns the stored refresh token ("" if none).
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.RefreshToken
}

// SetTokens stores a new token pair.
func (s *Store) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AccessToken = access
	s.data.RefreshToken = refresh
	return s.flushLocked()
}

// SetUser caches the signed-in user profile.
func (s *Store) SetUser(user any) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.User = raw
	return s.flushLocked()
}

// User unmarshals the cached profile into out; false if none cached.
func (s *Store) User(out any) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data.User) == 0 {
		return false
	}
	return json.Unmarshal(s.data.User, out) == nil
}

// PINHash returns the stored local PIN hash ("" if none).
func (s *Store) PINHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.PINHash
}

// SetPINHash stores the local PIN hash ("" clears it).
func (s *Store) SetPINHash(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PINHash = hash
	return s.flushLocked()
}

// ClearAll wipes tokens, profile, and PIN. Called on logout and on
// unrecoverable refresh failure.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = fileData{}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
