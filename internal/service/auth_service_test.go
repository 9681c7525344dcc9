package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/credentials"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
)

func newAuthFixture(t *testing.T, backend *mockBackend) (*AuthService, *credentials.Store, localstore.Repository, *SyncService) {
	t.Helper()
	creds, err := credentials.Open(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("open credentials: %v", err)
	}
	repo := localstore.NewMemory()
	net := netmon.New(netmon.Online)
	syncSvc := NewSyncService(repo, backend, net, time.Minute, zap.NewNop(), observability.NewMetrics())
	t.Cleanup(syncSvc.Close)
	auth := NewAuthService(backend, creds, repo, syncSvc, zap.NewNop(), observability.NewMetrics())
	return auth, creds, repo, syncSvc
}

func TestLogin_PersistsSession(t *testing.T) {
	backend := &mockBackend{}
	auth, creds, _, _ := newAuthFixture(t, backend)

	user, err := auth.Login(context.Background(), "ana@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("unexpected user: %+v", user)
	}
	if creds.AccessToken() != "access-1" || creds.RefreshToken() != "refresh-1" {
		t.Error("tokens not persisted")
	}
	if !auth.HasSession() {
		t.Error("session not detectable after login")
	}

	restored, err := auth.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored == nil || restored.Email != "ana@example.com" {
		t.Errorf("cached profile not restored: %+v", restored)
	}
}

func TestLogout_TearsEverythingDown(t *testing.T) {
	backend := &mockBackend{}
	auth, _, repo, syncSvc := newAuthFixture(t, backend)

	if _, err := auth.Login(context.Background(), "ana@example.com", "hunter22"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := repo.UpsertBook(domain.Book{ID: "book-1", Name: "Household"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	syncSvc.StartAutoSync("book-1")

	if err := auth.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if auth.HasSession() {
		t.Error("credentials survived logout")
	}
	if books, _ := repo.Books(); len(books) != 0 {
		t.Error("local cache survived logout")
	}

	// No auto-sync timer may outlive the session.
	start := len(backend.recorded())
	time.Sleep(60 * time.Millisecond)
	if after := len(backend.recorded()); after != start {
		t.Error("background sync still running after logout")
	}
}

func TestLogout_ServerFailureStillClearsLocally(t *testing.T) {
	backend := &mockBackend{
		logoutFn: func() error {
			return &domain.ErrNetwork{Op: "POST /auth/logout", Err: context.DeadlineExceeded}
		},
	}
	auth, _, _, _ := newAuthFixture(t, backend)

	if _, err := auth.Login(context.Background(), "ana@example.com", "hunter22"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := auth.Logout(context.Background()); err != nil {
		t.Fatalf("logout must succeed locally despite server failure: %v", err)
	}
	if auth.HasSession() {
		t.Error("credentials survived logout")
	}
}

func TestRestore_NoSession(t *testing.T) {
	auth, _, _, _ := newAuthFixture(t, &mockBackend{})

	if auth.HasSession() {
		t.Error("fresh store must have no session")
	}
	if _, err := auth.Restore(); err == nil {
		t.Error("expected auth error restoring without credentials")
	}
}
