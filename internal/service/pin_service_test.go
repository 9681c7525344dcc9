package service

import (
	"path/filepath"
	"testing"

	"github.com/genzilabs/monger-client/internal/infra/credentials"
)

func newPINFixture(t *testing.T) *PINService {
	t.Helper()
	creds, err := credentials.Open(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("open credentials: %v", err)
	}
	return NewPINService(creds)
}

func TestPIN_RoundTrip(t *testing.T) {
	pin := newPINFixture(t)

	if pin.HasPIN() {
		t.Fatal("fresh store must have no pin")
	}
	if err := pin.Set("4821"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !pin.HasPIN() {
		t.Error("pin not detected after set")
	}
	if !pin.Verify("4821") {
		t.Error("correct pin rejected")
	}
	if pin.Verify("0000") {
		t.Error("wrong pin accepted")
	}

	if err := pin.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if pin.HasPIN() || pin.Verify("4821") {
		t.Error("pin survived clear")
	}
}

func TestPIN_TooShortRejected(t *testing.T) {
	pin := newPINFixture(t)
	if err := pin.Set("12"); err == nil {
		t.Error("expected validation error for short pin")
	}
}
