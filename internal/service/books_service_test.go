package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
)

func newBooksFixture(t *testing.T, backend *mockBackend, state netmon.State) (*BooksService, localstore.Repository) {
	t.Helper()
	repo := localstore.NewMemory()
	net := netmon.New(state)
	s := NewBooksService(repo, backend, net, zap.NewNop(), observability.NewMetrics())
	return s, repo
}

func TestBooksLoad_MirrorsLocally(t *testing.T) {
	backend := &mockBackend{
		listBooksFn: func() ([]domain.Book, error) {
			return []domain.Book{{ID: "book-1", Name: "Household", Version: 1}}, nil
		},
	}
	s, repo := newBooksFixture(t, backend, netmon.Online)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Snapshot().Books) != 1 {
		t.Fatal("books not loaded")
	}
	cached, err := repo.GetBook("book-1")
	if err != nil || cached == nil {
		t.Fatalf("book not mirrored locally: %v", err)
	}
}

func TestBooksLoad_OfflineServesMirror(t *testing.T) {
	backend := &mockBackend{}
	s, repo := newBooksFixture(t, backend, netmon.Offline)
	if err := repo.UpsertBook(domain.Book{ID: "book-1", Name: "Household"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("offline load: %v", err)
	}
	if len(s.Snapshot().Books) != 1 {
		t.Error("cached book not served offline")
	}
	if calls := backend.recorded(); len(calls) != 0 {
		t.Errorf("offline load must not touch the network: %v", calls)
	}
}

func TestUpdateBook_ConflictRestoresPrior(t *testing.T) {
	backend := &mockBackend{
		listBooksFn: func() ([]domain.Book, error) {
			return []domain.Book{{ID: "book-1", Name: "Household", Version: 2}}, nil
		},
		updateBookFn: func(id string, req domain.UpdateBookRequest) (*domain.Book, error) {
			return nil, &domain.ErrConflict{Message: "stale version"}
		},
	}
	s, _ := newBooksFixture(t, backend, netmon.Online)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := s.Snapshot().Books

	_, err := s.UpdateBook(context.Background(), "book-1", domain.UpdateBookRequest{Name: "Renamed", Version: 1})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.EntityType != domain.EntityBook {
		t.Errorf("conflict must name the entity type: %+v", conflict)
	}
	if !reflect.DeepEqual(before, s.Snapshot().Books) {
		t.Error("conflict must restore the prior record")
	}
}

func TestCreatePocket_OfflineQueues(t *testing.T) {
	backend := &mockBackend{}
	s, repo := newBooksFixture(t, backend, netmon.Offline)

	created, err := s.CreatePocket(context.Background(), "book-1", domain.CreatePocketRequest{Name: "Cash"})
	if err != nil {
		t.Fatalf("offline create: %v", err)
	}
	if !strings.HasPrefix(created.ID, "temp-") {
		t.Errorf("offline pocket must keep its temporary id, got %q", created.ID)
	}

	changes, _ := repo.ChangesByBook("book-1")
	if len(changes) != 1 || changes[0].EntityType != domain.EntityPocket || changes[0].Action != domain.ActionCreate {
		t.Errorf("expected queued pocket create, got %+v", changes)
	}
	if calls := backend.recorded(); len(calls) != 0 {
		t.Errorf("offline create must not touch the network: %v", calls)
	}
}

func TestCreatePocket_ReplacesProvisionalInPlace(t *testing.T) {
	backend := &mockBackend{}
	s, _ := newBooksFixture(t, backend, netmon.Online)

	created, err := s.CreatePocket(context.Background(), "book-1", domain.CreatePocketRequest{Name: "Cash"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pockets := s.Snapshot().Pockets["book-1"]
	if len(pockets) != 1 || pockets[0].ID != created.ID || strings.HasPrefix(pockets[0].ID, "temp-") {
		t.Errorf("provisional not replaced by authoritative record: %+v", pockets)
	}
}

func TestDeleteBook_OfflineRejected(t *testing.T) {
	backend := &mockBackend{
		listBooksFn: func() ([]domain.Book, error) {
			return []domain.Book{{ID: "book-1", Name: "Household"}}, nil
		},
	}
	s, _ := newBooksFixture(t, backend, netmon.Online)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Flip offline after load; ledger deletion must be arbitrated online.
	s.net.SetState(netmon.Offline)
	err := s.DeleteBook(context.Background(), "book-1")
	var netErr *domain.ErrNetwork
	if !errors.As(err, &netErr) {
		t.Fatalf("expected network error, got %v", err)
	}
	if len(s.Snapshot().Books) != 1 {
		t.Error("book must remain visible when delete is rejected offline")
	}
}

func TestReconcile_UpdatesBalance(t *testing.T) {
	backend := &mockBackend{
		listPocketsFn: func(bookID string) ([]domain.Pocket, error) {
			return []domain.Pocket{{ID: "pk-1", BookID: bookID, Name: "Cash", BalanceCents: 100000, Version: 1}}, nil
		},
		reconcilePocketFn: func(id string, req domain.ReconcileRequest) (*domain.Pocket, error) {
			return &domain.Pocket{ID: id, BookID: "book-1", Name: "Cash", BalanceCents: req.NewBalanceCents, Version: 2}, nil
		},
	}
	s, repo := newBooksFixture(t, backend, netmon.Online)
	if err := s.LoadPockets(context.Background(), "book-1"); err != nil {
		t.Fatalf("load pockets: %v", err)
	}

	updated, err := s.Reconcile(context.Background(), "book-1", "pk-1", 87500)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if updated.BalanceCents != 87500 {
		t.Errorf("balance not set: %+v", updated)
	}
	cached, _ := repo.PocketsByBook("book-1")
	if len(cached) != 1 || cached[0].BalanceCents != 87500 {
		t.Errorf("reconciled balance not mirrored: %+v", cached)
	}
}
