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
	"github.com/genzilabs/monger-client/internal/infra/api"
	"github.com/genzilabs/monger-client/internal/infra/cache"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
)

var txTracer = otel.Tracer("service/transactions")

// txBackend is the slice of the HTTP gateway the transaction store uses.
type txBackend interface {
	CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, req domain.UpdateTransactionRequest) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	CreateTransfer(ctx context.Context, req domain.CreateTransferRequest) error
	TransactionsByPocket(ctx context.Context, pocketID string, opts api.ListOptions) (*domain.TransactionPage, error)
	MonthlySummary(ctx context.Context, bookID string, month, year int) (*domain.MonthlySummary, error)
	CategoryBreakdown(ctx context.Context, bookID, txType string, month, year int) ([]domain.CategoryBreakdown, error)
}

// TransactionsSnapshot is an immutable view of the store's state.
type TransactionsSnapshot struct {
	PocketID     string
	Transactions []domain.Transaction
	NextCursor   string
	HasMore      bool
	Loading      bool
	Err          string
}

// pendingOp tracks one in-flight optimistic mutation, keyed by a correlation
// id. The provisional record is found through its temporary id, never by
// scanning for value matches.
type pendingOp struct {
	tempID string
}

// TransactionsService fronts the transaction list for one pocket at a time.
// Mutations are optimistic: applied to in-memory state immediately, replaced
// by the authoritative record on success, rolled back on failure. Mutations
// issued while offline are queued to the outbox instead.
type TransactionsService struct {
	repo    localstore.Repository
	backend txBackend
	net     *netmon.Monitor
	logger  *zap.Logger
	metrics *observability.Metrics

	summaries  *cache.InMemory[domain.MonthlySummary]
	breakdowns *cache.InMemory[[]domain.CategoryBreakdown]

	mu         sync.Mutex
	pocketID   string
	items      []domain.Transaction
	nextCursor string
	hasMore    bool
	loading    bool
	errMsg     string
	pendingOps map[string]pendingOp

	notifier *notifier
}

// NewTransactionsService builds the store. cacheTTL bounds how long summary
// and breakdown reads are served from memory.
func NewTransactionsService(repo localstore.Repository, backend txBackend, net *netmon.Monitor, cacheTTL time.Duration, logger *zap.Logger, metrics *observability.Metrics) *TransactionsService {
	return &TransactionsService{
		repo:       repo,
		backend:    backend,
		net:        net,
		logger:     logger,
		metrics:    metrics,
		summaries:  cache.New[domain.MonthlySummary](cacheTTL),
		breakdowns: cache.New[[]domain.CategoryBreakdown](cacheTTL),
		pendingOps: make(map[string]pendingOp),
		notifier:   newNotifier(),
	}
}

// Snapshot returns a copy of the current state.
func (s *TransactionsService) Snapshot() TransactionsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.Transaction, len(s.items))
	copy(items, s.items)
	return TransactionsSnapshot{
		PocketID:     s.pocketID,
		Transactions: items,
		NextCursor:   s.nextCursor,
		HasMore:      s.hasMore,
		Loading:      s.loading,
		Err:          s.errMsg,
	}
}

// Subscribe registers a change callback and returns an unsubscribe function.
func (s *TransactionsService) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

// RefreshFromLocal re-reads the loaded pocket's mirror after the sync engine
// has written to it. A no-op until a pocket has been loaded.
func (s *TransactionsService) RefreshFromLocal() {
	s.mu.Lock()
	pocketID := s.pocketID
	s.mu.Unlock()
	if pocketID == "" {
		return
	}

	cached, err := s.repo.TransactionsByPocket(pocketID)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.items = cached
	s.mu.Unlock()
	s.notifier.notify()
}

// LoadPocket loads the first page of a pocket's transactions. Online reads
// come from the server and are mirrored into the local store; offline or
// failed reads fall back to the cached mirror.
func (s *TransactionsService) LoadPocket(ctx context.Context, pocketID string, opts api.ListOptions) error {
	ctx, span := txTracer.Start(ctx, "transactions.load_pocket")
	defer span.End()

	s.mu.Lock()
	s.pocketID = pocketID
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		return s.loadFromLocal(pocketID)
	}

	page, err := s.backend.TransactionsByPocket(ctx, pocketID, opts)
	if err != nil {
		var netErr *domain.ErrNetwork
		if errors.As(err, &netErr) {
			s.logger.Debug("transactions: falling back to local cache",
				zap.String("pocket_id", pocketID),
				zap.Error(err),
			)
			return s.loadFromLocal(pocketID)
		}
		s.setError(err)
		return err
	}

	if page != nil {
		if err := s.repo.UpsertTransactions(page.Transactions); err != nil {
			s.logger.Warn("transactions: mirroring page failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	if page != nil {
		s.items = page.Transactions
		s.nextCursor = page.NextCursor
		s.hasMore = page.HasMore
	} else {
		s.items = nil
		s.nextCursor = ""
		s.hasMore = false
	}
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// LoadMore appends the next page using the stored cursor.
func (s *TransactionsService) LoadMore(ctx context.Context, opts api.ListOptions) error {
	s.mu.Lock()
	pocketID, cursor, hasMore := s.pocketID, s.nextCursor, s.hasMore
	s.mu.Unlock()

	if !hasMore || pocketID == "" {
		return nil
	}
	opts.Cursor = cursor

	page, err := s.backend.TransactionsByPocket(ctx, pocketID, opts)
	if err != nil {
		s.setError(err)
		return err
	}
	if page == nil {
		return nil
	}
	if err := s.repo.UpsertTransactions(page.Transactions); err != nil {
		s.logger.Warn("transactions: mirroring page failed", zap.Error(err))
	}

	s.mu.Lock()
	s.items = append(s.items, page.Transactions...)
	s.nextCursor = page.NextCursor
	s.hasMore = page.HasMore
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// Create records a new transaction. The provisional record is visible
// immediately under a temporary id; on success it is replaced in place by the
// server's record, on failure it is removed and the error surfaced. While
// offline the mutation is queued to the outbox instead of sent.
func (s *TransactionsService) Create(ctx context.Context, bookID string, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "transactions.create")
	defer span.End()

	corrID := uuid.NewString()
	provisional := provisionalTransaction(req)

	s.mu.Lock()
	s.items = append([]domain.Transaction{provisional}, s.items...)
	s.pendingOps[corrID] = pendingOp{tempID: provisional.ID}
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		return s.queueCreate(bookID, corrID, provisional, req)
	}

	created, err := s.backend.CreateTransaction(ctx, req)
	if err != nil {
		s.rollbackInsert(corrID)
		s.setError(err)
		return nil, err
	}
	if created == nil {
		s.rollbackInsert(corrID)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty create response"}
	}

	s.resolveInsert(corrID, *created)
	if err := s.repo.UpsertTransactions([]domain.Transaction{*created}); err != nil {
		s.logger.Warn("transactions: mirroring create failed", zap.Error(err))
	}
	return created, nil
}

// queueCreate is the offline path: the provisional record stays visible
// under its temporary id and the mutation is durably queued for the next
// drain.
func (s *TransactionsService) queueCreate(bookID, corrID string, provisional domain.Transaction, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		s.rollbackInsert(corrID)
		return nil, &domain.ErrValidation{Message: fmt.Sprintf("encode pending change: %v", err)}
	}

	ch := domain.PendingChange{
		ID:         uuid.NewString(),
		EntityType: domain.EntityTransaction,
		EntityID:   provisional.ID,
		BookID:     bookID,
		Action:     domain.ActionCreate,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.EnqueueChange(ch); err != nil {
		s.rollbackInsert(corrID)
		s.setError(err)
		return nil, err
	}
	if err := s.repo.UpsertTransactions([]domain.Transaction{provisional}); err != nil {
		s.logger.Warn("transactions: mirroring offline create failed", zap.Error(err))
	}

	s.mu.Lock()
	delete(s.pendingOps, corrID)
	s.mu.Unlock()

	if n, cerr := s.repo.CountChanges(); cerr == nil {
		s.metrics.SetPendingChanges(n)
	}
	s.logger.Debug("transactions: create queued offline",
		zap.String("temp_id", provisional.ID),
		zap.String("book_id", bookID),
	)
	return &provisional, nil
}

// Update sends a versioned edit. The in-memory record shows the new values
// immediately; a stale-version rejection restores the prior record, leaves
// the local store untouched, and surfaces the conflict. The caller re-fetches
// and re-applies; the update is never silently retried.
func (s *TransactionsService) Update(ctx context.Context, bookID, id string, req domain.UpdateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "transactions.update")
	defer span.End()

	s.mu.Lock()
	idx := indexByID(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	prior := s.items[idx]
	optimistic := prior
	optimistic.Name = req.Name
	optimistic.AmountCents = req.AmountCents
	if req.Date != "" {
		optimistic.Date = req.Date
	}
	optimistic.Description = req.Description
	optimistic.CategoryID = req.CategoryID
	optimistic.SubcategoryID = req.SubcategoryID
	s.items[idx] = optimistic
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		return s.queueUpdate(bookID, id, optimistic, req)
	}

	updated, err := s.backend.UpdateTransaction(ctx, id, req)
	if err != nil {
		s.restoreRecord(prior)
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			s.metrics.RecordConflict(domain.EntityTransaction)
			return nil, &domain.ErrConflict{
				EntityType: domain.EntityTransaction,
				EntityID:   id,
				Message:    conflict.Message,
			}
		}
		s.setError(err)
		return nil, err
	}
	if updated == nil {
		s.restoreRecord(prior)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty update response"}
	}

	s.restoreRecord(*updated)
	if err := s.repo.UpsertTransactions([]domain.Transaction{*updated}); err != nil {
		s.logger.Warn("transactions: mirroring update failed", zap.Error(err))
	}
	return updated, nil
}

func (s *TransactionsService) queueUpdate(bookID, id string, optimistic domain.Transaction, req domain.UpdateTransactionRequest) (*domain.Transaction, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &domain.ErrValidation{Message: fmt.Sprintf("encode pending change: %v", err)}
	}
	ch := domain.PendingChange{
		ID:         uuid.NewString(),
		EntityType: domain.EntityTransaction,
		EntityID:   id,
		BookID:     bookID,
		Action:     domain.ActionUpdate,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.EnqueueChange(ch); err != nil {
		s.setError(err)
		return nil, err
	}
	if err := s.repo.UpsertTransactions([]domain.Transaction{optimistic}); err != nil {
		s.logger.Warn("transactions: mirroring offline update failed", zap.Error(err))
	}
	if n, cerr := s.repo.CountChanges(); cerr == nil {
		s.metrics.SetPendingChanges(n)
	}
	return &optimistic, nil
}

// Delete removes the record from view immediately and restores it at its
// prior position if the server rejects the delete.
func (s *TransactionsService) Delete(ctx context.Context, bookID, id string) error {
	ctx, span := txTracer.Start(ctx, "transactions.delete")
	defer span.End()

	s.mu.Lock()
	idx := indexByID(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	prior := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		ch := domain.PendingChange{
			ID:         uuid.NewString(),
			EntityType: domain.EntityTransaction,
			EntityID:   id,
			BookID:     bookID,
			Action:     domain.ActionDelete,
			CreatedAt:  time.Now(),
		}
		if err := s.repo.EnqueueChange(ch); err != nil {
			s.restoreAt(prior, idx)
			s.setError(err)
			return err
		}
		if err := s.repo.DeleteTransaction(id); err != nil {
			s.logger.Warn("transactions: mirroring offline delete failed", zap.Error(err))
		}
		if n, cerr := s.repo.CountChanges(); cerr == nil {
			s.metrics.SetPendingChanges(n)
		}
		return nil
	}

	if err := s.backend.DeleteTransaction(ctx, id); err != nil {
		s.restoreAt(prior, idx)
		s.setError(err)
		return err
	}
	if err := s.repo.DeleteTransaction(id); err != nil {
		s.logger.Warn("transactions: mirroring delete failed", zap.Error(err))
	}
	return nil
}

// Transfer creates the linked pair of transactions moving money between two
// pockets. Transfers mutate two balances server-side and are online-only; the
// outbox never carries one.
func (s *TransactionsService) Transfer(ctx context.Context, req domain.CreateTransferRequest) error {
	ctx, span := txTracer.Start(ctx, "transactions.transfer")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "create transfer", Err: errors.New("offline")}
	}
	if err := s.backend.CreateTransfer(ctx, req); err != nil {
		s.setError(err)
		return err
	}
	return nil
}

// Summary returns the book's monthly totals, served from a TTL cache.
func (s *TransactionsService) Summary(ctx context.Context, bookID string, month, year int) (*domain.MonthlySummary, error) {
	key := fmt.Sprintf("%s:%d-%d", bookID, year, month)
	if cached, ok := s.summaries.Get(key); ok {
		s.metrics.RecordCacheHit("summary")
		return &cached, nil
	}
	s.metrics.RecordCacheMiss("summary")

	sum, err := s.backend.MonthlySummary(ctx, bookID, month, year)
	if err != nil {
		return nil, err
	}
	if sum != nil {
		s.summaries.Set(key, *sum)
	}
	return sum, nil
}

// Breakdown returns per-category totals for a month, served from a TTL cache.
func (s *TransactionsService) Breakdown(ctx context.Context, bookID, txType string, month, year int) ([]domain.CategoryBreakdown, error) {
	key := fmt.Sprintf("%s:%s:%d-%d", bookID, txType, year, month)
	if cached, ok := s.breakdowns.Get(key); ok {
		s.metrics.RecordCacheHit("breakdown")
		return cached, nil
	}
	s.metrics.RecordCacheMiss("breakdown")

	rows, err := s.backend.CategoryBreakdown(ctx, bookID, txType, month, year)
	if err != nil {
		return nil, err
	}
	s.breakdowns.Set(key, rows)
	return rows, nil
}

// Close releases the TTL caches.
func (s *TransactionsService) Close() {
	s.summaries.Close()
	s.breakdowns.Close()
}

// --- internals ---

func (s *TransactionsService) loadFromLocal(pocketID string) error {
	cached, err := s.repo.TransactionsByPocket(pocketID)
	s.mu.Lock()
	if err == nil {
		s.items = cached
	}
	s.nextCursor = ""
	s.hasMore = false
	s.loading = false
	if err != nil {
		s.errMsg = err.Error()
	}
	s.mu.Unlock()
	s.notifier.notify()
	return err
}

// resolveInsert swaps the provisional record for the authoritative one in
// place, preserving its list position.
func (s *TransactionsService) resolveInsert(corrID string, authoritative domain.Transaction) {
	s.mu.Lock()
	op, ok := s.pendingOps[corrID]
	if ok {
		delete(s.pendingOps, corrID)
		if idx := indexByID(s.items, op.tempID); idx >= 0 {
			s.items[idx] = authoritative
		}
	}
	s.mu.Unlock()
	s.notifier.notify()
}

// rollbackInsert removes the provisional record entirely.
func (s *TransactionsService) rollbackInsert(corrID string) {
	s.mu.Lock()
	op, ok := s.pendingOps[corrID]
	if ok {
		delete(s.pendingOps, corrID)
		if idx := indexByID(s.items, op.tempID); idx >= 0 {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
		}
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *TransactionsService) restoreRecord(record domain.Transaction) {
	s.mu.Lock()
	if idx := indexByID(s.items, record.ID); idx >= 0 {
		s.items[idx] = record
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *TransactionsService) restoreAt(record domain.Transaction, idx int) {
	s.mu.Lock()
	if idx > len(s.items) {
		idx = len(s.items)
	}
	s.items = append(s.items[:idx], append([]domain.Transaction{record}, s.items[idx:]...)...)
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *TransactionsService) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
}

func indexByID(items []domain.Transaction, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func provisionalTransaction(req domain.CreateTransactionRequest) domain.Transaction {
	now := time.Now().UTC().Format(time.RFC3339)
	date := req.Date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	return domain.Transaction{
		ID:            "temp-" + uuid.NewString(),
		PocketID:      req.PocketID,
		Name:          req.Name,
		AmountCents:   req.AmountCents,
		Type:          req.Type,
		Date:          date,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
