package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
)

var booksTracer = otel.Tracer("service/books")

type booksBackend interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	CreateBook(ctx context.Context, req domain.CreateBookRequest) (*domain.Book, error)
	UpdateBook(ctx context.Context, id string, req domain.UpdateBookRequest) (*domain.Book, error)
	DeleteBook(ctx context.Context, id string) error

	ListPockets(ctx context.Context, bookID string) ([]domain.Pocket, error)
	CreatePocket(ctx context.Context, bookID string, req domain.CreatePocketRequest) (*domain.Pocket, error)
	UpdatePocket(ctx context.Context, id string, req domain.UpdatePocketRequest) (*domain.Pocket, error)
	DeletePocket(ctx context.Context, id string) error
	ReconcilePocket(ctx context.Context, id string, req domain.ReconcileRequest) (*domain.Pocket, error)
}

// BooksSnapshot is an immutable view of the books store.
type BooksSnapshot struct {
	Books   []domain.Book
	Pockets map[string][]domain.Pocket // keyed by book id
	Loading bool
	Err     string
}

// BooksService fronts books and their pockets. Book creation is online-only
// (collaboration setup happens server-side); pocket mutations follow the
// optimistic pattern and queue to the outbox while offline.
type BooksService struct {
	repo    localstore.Repository
	backend booksBackend
	net     *netmon.Monitor
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	books   []domain.Book
	pockets map[string][]domain.Pocket
	loading bool
	errMsg  string

	notifier *notifier
}

func NewBooksService(repo localstore.Repository, backend booksBackend, net *netmon.Monitor, logger *zap.Logger, metrics *observability.Metrics) *BooksService {
	return &BooksService{
		repo:     repo,
		backend:  backend,
		net:      net,
		logger:   logger,
		metrics:  metrics,
		pockets:  make(map[string][]domain.Pocket),
		notifier: newNotifier(),
	}
}

// Snapshot returns a copy of the current state.
func (s *BooksService) Snapshot() BooksSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	books := make([]domain.Book, len(s.books))
	copy(books, s.books)
	pockets := make(map[string][]domain.Pocket, len(s.pockets))
	for id, ps := range s.pockets {
		cp := make([]domain.Pocket, len(ps))
		copy(cp, ps)
		pockets[id] = cp
	}
	return BooksSnapshot{Books: books, Pockets: pockets, Loading: s.loading, Err: s.errMsg}
}

func (s *BooksService) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

// RefreshFromLocal re-reads the local mirror after the sync engine has
// written to it, replacing the in-memory books and the book's pockets.
func (s *BooksService) RefreshFromLocal(bookID string) {
	books, berr := s.repo.Books()
	pockets, perr := s.repo.PocketsByBook(bookID)

	s.mu.Lock()
	if berr == nil {
		s.books = books
	}
	if perr == nil {
		s.pockets[bookID] = pockets
	}
	s.mu.Unlock()
	s.notifier.notify()
}

// Load fetches the user's books, mirroring them locally; offline or on
// transport failure the cached mirror is served instead.
func (s *BooksService) Load(ctx context.Context) error {
	ctx, span := booksTracer.Start(ctx, "books.load")
	defer span.End()

	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		return s.loadBooksFromLocal()
	}

	books, err := s.backend.ListBooks(ctx)
	if err != nil {
		var netErr *domain.ErrNetwork
		if errors.As(err, &netErr) {
			return s.loadBooksFromLocal()
		}
		s.setError(err)
		return err
	}

	for _, b := range books {
		if uerr := s.repo.UpsertBook(b); uerr != nil {
			s.logger.Warn("books: mirroring failed", zap.Error(uerr))
			break
		}
	}

	s.mu.Lock()
	s.books = books
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// LoadPockets fetches one book's pockets, with the same offline fallback.
func (s *BooksService) LoadPockets(ctx context.Context, bookID string) error {
	ctx, span := booksTracer.Start(ctx, "books.load_pockets")
	defer span.End()

	if s.net.IsOffline() {
		return s.loadPocketsFromLocal(bookID)
	}

	pockets, err := s.backend.ListPockets(ctx, bookID)
	if err != nil {
		var netErr *domain.ErrNetwork
		if errors.As(err, &netErr) {
			return s.loadPocketsFromLocal(bookID)
		}
		s.setError(err)
		return err
	}

	if err := s.repo.UpsertPockets(pockets); err != nil {
		s.logger.Warn("books: mirroring pockets failed", zap.Error(err))
	}

	s.mu.Lock()
	s.pockets[bookID] = pockets
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// CreateBook is online-only: a new ledger needs server-assigned defaults
// (categories, membership) before it is usable.
func (s *BooksService) CreateBook(ctx context.Context, req domain.CreateBookRequest) (*domain.Book, error) {
	ctx, span := booksTracer.Start(ctx, "books.create")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "create book", Err: errors.New("offline")}
	}

	created, err := s.backend.CreateBook(ctx, req)
	if err != nil {
		s.setError(err)
		return nil, err
	}
	if created == nil {
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty create response"}
	}

	if err := s.repo.UpsertBook(*created); err != nil {
		s.logger.Warn("books: mirroring create failed", zap.Error(err))
	}

	s.mu.Lock()
	s.books = append(s.books, *created)
	s.mu.Unlock()
	s.notifier.notify()
	return created, nil
}

// UpdateBook sends a versioned edit; a stale version restores the prior
// record and surfaces the conflict. While offline the edit is queued.
func (s *BooksService) UpdateBook(ctx context.Context, id string, req domain.UpdateBookRequest) (*domain.Book, error) {
	ctx, span := booksTracer.Start(ctx, "books.update")
	defer span.End()

	s.mu.Lock()
	idx := bookIndex(s.books, id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "book", ID: id}
	}
	prior := s.books[idx]
	optimistic := prior
	if req.Name != "" {
		optimistic.Name = req.Name
	}
	if req.Description != "" {
		optimistic.Description = req.Description
	}
	if req.BaseCurrency != "" {
		optimistic.BaseCurrency = req.BaseCurrency
	}
	if req.MonthStartDay != 0 {
		optimistic.MonthStartDay = req.MonthStartDay
	}
	s.books[idx] = optimistic
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(domain.EntityBook, id, id, domain.ActionUpdate, req); err != nil {
			s.restoreBook(prior)
			return nil, err
		}
		return &optimistic, nil
	}

	updated, err := s.backend.UpdateBook(ctx, id, req)
	if err != nil {
		s.restoreBook(prior)
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			s.metrics.RecordConflict(domain.EntityBook)
			return nil, &domain.ErrConflict{EntityType: domain.EntityBook, EntityID: id, Message: conflict.Message}
		}
		s.setError(err)
		return nil, err
	}
	if updated == nil {
		s.restoreBook(prior)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty update response"}
	}

	s.restoreBook(*updated)
	if err := s.repo.UpsertBook(*updated); err != nil {
		s.logger.Warn("books: mirroring update failed", zap.Error(err))
	}
	return updated, nil
}

// DeleteBook removes the ledger from view immediately and restores it on
// rejection. Online-only: deleting a shared ledger must be arbitrated
// server-side.
func (s *BooksService) DeleteBook(ctx context.Context, id string) error {
	ctx, span := booksTracer.Start(ctx, "books.delete")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "delete book", Err: errors.New("offline")}
	}

	s.mu.Lock()
	idx := bookIndex(s.books, id)
	if idx < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "book", ID: id}
	}
	prior := s.books[idx]
	s.books = append(s.books[:idx], s.books[idx+1:]...)
	s.mu.Unlock()
	s.notifier.notify()

	if err := s.backend.DeleteBook(ctx, id); err != nil {
		s.mu.Lock()
		if idx > len(s.books) {
			idx = len(s.books)
		}
		s.books = append(s.books[:idx], append([]domain.Book{prior}, s.books[idx:]...)...)
		s.mu.Unlock()
		s.notifier.notify()
		s.setError(err)
		return err
	}
	return nil
}

// CreatePocket splices a provisional pocket in immediately; while offline the
// create is queued with the provisional visible under its temporary id.
func (s *BooksService) CreatePocket(ctx context.Context, bookID string, req domain.CreatePocketRequest) (*domain.Pocket, error) {
	ctx, span := booksTracer.Start(ctx, "books.create_pocket")
	defer span.End()

	now := time.Now().UTC().Format(time.RFC3339)
	provisional := domain.Pocket{
		ID:           "temp-" + uuid.NewString(),
		BookID:       bookID,
		Name:         req.Name,
		TypeSlug:     req.TypeSlug,
		IconSlug:     req.IconSlug,
		Color:        req.Color,
		BalanceCents: req.BalanceCents,
		Role:         domain.RoleOwner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.pockets[bookID] = append(s.pockets[bookID], provisional)
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(domain.EntityPocket, provisional.ID, bookID, domain.ActionCreate, req); err != nil {
			s.removePocket(bookID, provisional.ID)
			return nil, err
		}
		if uerr := s.repo.UpsertPockets([]domain.Pocket{provisional}); uerr != nil {
			s.logger.Warn("books: mirroring offline pocket failed", zap.Error(uerr))
		}
		return &provisional, nil
	}

	created, err := s.backend.CreatePocket(ctx, bookID, req)
	if err != nil {
		s.removePocket(bookID, provisional.ID)
		s.setError(err)
		return nil, err
	}
	if created == nil {
		s.removePocket(bookID, provisional.ID)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty create response"}
	}

	s.replacePocket(bookID, provisional.ID, *created)
	if err := s.repo.UpsertPockets([]domain.Pocket{*created}); err != nil {
		s.logger.Warn("books: mirroring pocket failed", zap.Error(err))
	}
	return created, nil
}

// UpdatePocket sends a versioned edit with conflict surfacing, queued while
// offline.
func (s *BooksService) UpdatePocket(ctx context.Context, bookID, id string, req domain.UpdatePocketRequest) (*domain.Pocket, error) {
	ctx, span := booksTracer.Start(ctx, "books.update_pocket")
	defer span.End()

	s.mu.Lock()
	idx := pocketIndex(s.pockets[bookID], id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "pocket", ID: id}
	}
	prior := s.pockets[bookID][idx]
	optimistic := prior
	if req.Name != "" {
		optimistic.Name = req.Name
	}
	if req.TypeSlug != "" {
		optimistic.TypeSlug = req.TypeSlug
	}
	if req.IconSlug != "" {
		optimistic.IconSlug = req.IconSlug
	}
	if req.Color != "" {
		optimistic.Color = req.Color
	}
	if req.IsFrozen != nil {
		optimistic.IsFrozen = *req.IsFrozen
	}
	s.pockets[bookID][idx] = optimistic
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(domain.EntityPocket, id, bookID, domain.ActionUpdate, req); err != nil {
			s.replacePocket(bookID, id, prior)
			return nil, err
		}
		if uerr := s.repo.UpsertPockets([]domain.Pocket{optimistic}); uerr != nil {
			s.logger.Warn("books: mirroring offline pocket failed", zap.Error(uerr))
		}
		return &optimistic, nil
	}

	updated, err := s.backend.UpdatePocket(ctx, id, req)
	if err != nil {
		s.replacePocket(bookID, id, prior)
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			s.metrics.RecordConflict(domain.EntityPocket)
			return nil, &domain.ErrConflict{EntityType: domain.EntityPocket, EntityID: id, Message: conflict.Message}
		}
		s.setError(err)
		return nil, err
	}
	if updated == nil {
		s.replacePocket(bookID, id, prior)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty update response"}
	}

	s.replacePocket(bookID, id, *updated)
	if err := s.repo.UpsertPockets([]domain.Pocket{*updated}); err != nil {
		s.logger.Warn("books: mirroring pocket failed", zap.Error(err))
	}
	return updated, nil
}

// DeletePocket removes the pocket from view immediately, queued while
// offline, restored on rejection.
func (s *BooksService) DeletePocket(ctx context.Context, bookID, id string) error {
	ctx, span := booksTracer.Start(ctx, "books.delete_pocket")
	defer span.End()

	s.mu.Lock()
	idx := pocketIndex(s.pockets[bookID], id)
	if idx < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "pocket", ID: id}
	}
	prior := s.pockets[bookID][idx]
	s.pockets[bookID] = append(s.pockets[bookID][:idx], s.pockets[bookID][idx+1:]...)
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(domain.EntityPocket, id, bookID, domain.ActionDelete, nil); err != nil {
			s.restorePocketAt(bookID, prior, idx)
			return err
		}
		return nil
	}

	if err := s.backend.DeletePocket(ctx, id); err != nil {
		s.restorePocketAt(bookID, prior, idx)
		s.setError(err)
		return err
	}
	return nil
}

// Reconcile sets a pocket's balance to an externally verified amount.
// Online-only: the server records the adjustment as its own transaction.
func (s *BooksService) Reconcile(ctx context.Context, bookID, id string, newBalanceCents int64) (*domain.Pocket, error) {
	ctx, span := booksTracer.Start(ctx, "books.reconcile")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "reconcile pocket", Err: errors.New("offline")}
	}

	updated, err := s.backend.ReconcilePocket(ctx, id, domain.ReconcileRequest{NewBalanceCents: newBalanceCents})
	if err != nil {
		s.setError(err)
		return nil, err
	}
	if updated == nil {
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty reconcile response"}
	}

	s.replacePocket(bookID, id, *updated)
	if err := s.repo.UpsertPockets([]domain.Pocket{*updated}); err != nil {
		s.logger.Warn("books: mirroring reconcile failed", zap.Error(err))
	}
	return updated, nil
}

// --- internals ---

func (s *BooksService) enqueue(entityType, entityID, bookID string, action domain.ChangeAction, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &domain.ErrValidation{Message: fmt.Sprintf("encode pending change: %v", err)}
		}
		raw = b
	}
	err := s.repo.EnqueueChange(domain.PendingChange{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		BookID:     bookID,
		Action:     action,
		Payload:    raw,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		s.setError(err)
		return err
	}
	if n, cerr := s.repo.CountChanges(); cerr == nil {
		s.metrics.SetPendingChanges(n)
	}
	return nil
}

func (s *BooksService) loadBooksFromLocal() error {
	cached, err := s.repo.Books()
	s.mu.Lock()
	if err == nil {
		s.books = cached
	} else {
		s.errMsg = err.Error()
	}
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
	return err
}

func (s *BooksService) loadPocketsFromLocal(bookID string) error {
	cached, err := s.repo.PocketsByBook(bookID)
	s.mu.Lock()
	if err == nil {
		s.pockets[bookID] = cached
	} else {
		s.errMsg = err.Error()
	}
	s.mu.Unlock()
	s.notifier.notify()
	return err
}

func (s *BooksService) restoreBook(b domain.Book) {
	s.mu.Lock()
	if idx := bookIndex(s.books, b.ID); idx >= 0 {
		s.books[idx] = b
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *BooksService) replacePocket(bookID, id string, p domain.Pocket) {
	s.mu.Lock()
	if idx := pocketIndex(s.pockets[bookID], id); idx >= 0 {
		s.pockets[bookID][idx] = p
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *BooksService) removePocket(bookID, id string) {
	s.mu.Lock()
	if idx := pocketIndex(s.pockets[bookID], id); idx >= 0 {
		s.pockets[bookID] = append(s.pockets[bookID][:idx], s.pockets[bookID][idx+1:]...)
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *BooksService) restorePocketAt(bookID string, p domain.Pocket, idx int) {
	s.mu.Lock()
	ps := s.pockets[bookID]
	if idx > len(ps) {
		idx = len(ps)
	}
	s.pockets[bookID] = append(ps[:idx], append([]domain.Pocket{p}, ps[idx:]...)...)
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *BooksService) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
}

func bookIndex(books []domain.Book, id string) int {
	for i := range books {
		if books[i].ID == id {
			return i
		}
	}
	return -1
}

func pocketIndex(pockets []domain.Pocket, id string) int {
	for i := range pockets {
		if pockets[i].ID == id {
			return i
		}
	}
	return -1
}
