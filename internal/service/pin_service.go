package service

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/credentials"
)

// PINService guards the app behind a short local unlock code. Only the
// bcrypt hash is ever persisted; the PIN cannot be recovered, only reset.
type PINService struct {
	creds *credentials.Store
}

func NewPINService(creds *credentials.Store) *PINService {
	return &PINService{creds: creds}
}

// HasPIN reports whether a lock code is set.
func (s *PINService) HasPIN() bool {
	return s.creds.PINHash() != ""
}

// Set hashes and stores a new lock code, replacing any previous one.
func (s *PINService) Set(pin string) error {
	if len(pin) < 4 {
		return &domain.ErrValidation{Message: "pin must be at least 4 digits"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.creds.SetPINHash(string(hash))
}

// Verify checks a candidate code against the stored hash.
func (s *PINService) Verify(pin string) bool {
	hash := s.creds.PINHash()
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// Clear removes the lock code.
func (s *PINService) Clear() error {
	return s.creds.SetPINHash("")
}
