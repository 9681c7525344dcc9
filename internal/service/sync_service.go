// Package service holds the domain stores and the sync engine. Stores front
// the local store and the HTTP gateway for their entity type and implement
// optimistic mutation with rollback; the sync engine reconciles the local
// store against server truth on a timer and on reconnect.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
	"github.com/genzilabs/monger-client/internal/infra/resilience"
)

var syncTracer = otel.Tracer("service/sync")

// SyncStatus is the per-book sync state.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
	SyncOffline SyncStatus = "offline"
)

// syncBackend is the slice of the HTTP gateway the engine needs: the delta
// endpoint plus the mutation endpoints used to replay pending changes.
type syncBackend interface {
	GetChanges(ctx context.Context, bookID, since string) (*domain.SyncDelta, error)

	CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, req domain.UpdateTransactionRequest) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	CreatePocket(ctx context.Context, bookID string, req domain.CreatePocketRequest) (*domain.Pocket, error)
	UpdatePocket(ctx context.Context, id string, req domain.UpdatePocketRequest) (*domain.Pocket, error)
	DeletePocket(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, bookID string, req domain.CreateCategoryRequest) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, req domain.UpdateCategoryRequest) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	UpdateBook(ctx context.Context, id string, req domain.UpdateBookRequest) (*domain.Book, error)
}

// SyncService reconciles the local store against the server. Pull fetches
// changes since a book's watermark and applies them atomically; Push drains
// the outbox in creation order. Pull and push for one book never overlap.
type SyncService struct {
	repo    localstore.Repository
	backend syncBackend
	net     *netmon.Monitor
	logger  *zap.Logger
	metrics *observability.Metrics

	interval time.Duration
	retry    resilience.Config

	mu          sync.Mutex
	status      map[string]SyncStatus
	timers      map[string]context.CancelFunc
	syncedSubs  map[int]func(bookID string)
	nextSubID   int
	unsubscribe func()
}

// NewSyncService builds the engine and subscribes it to connectivity
// transitions: on reconnect every known book gets a push-then-pull pass.
func NewSyncService(repo localstore.Repository, backend syncBackend, net *netmon.Monitor, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *SyncService {
	s := &SyncService{
		repo:       repo,
		backend:    backend,
		net:        net,
		logger:     logger,
		metrics:    metrics,
		interval:   interval,
		retry:      resilience.Config{MaxRetries: 2, InitialBackoff: 500 * time.Millisecond},
		status:     make(map[string]SyncStatus),
		timers:     make(map[string]context.CancelFunc),
		syncedSubs: make(map[int]func(string)),
	}
	s.unsubscribe = net.Subscribe(func(state netmon.State) {
		if state != netmon.Online {
			return
		}
		go s.syncAllKnownBooks(context.Background())
	})
	return s
}

// Status returns the current sync state for a book.
func (s *SyncService) Status(bookID string) SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[bookID]; ok {
		return st
	}
	return SyncIdle
}

// OnSynced registers a callback invoked after a pull or drain has written to
// the local store for a book, so stores can refresh their in-memory snapshots
// from the mirror. Callbacks run on the syncing goroutine and must not block.
// The returned function unsubscribes.
func (s *SyncService) OnSynced(fn func(bookID string)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.syncedSubs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.syncedSubs, id)
		s.mu.Unlock()
	}
}

func (s *SyncService) notifySynced(bookID string) {
	s.mu.Lock()
	subs := make([]func(string), 0, len(s.syncedSubs))
	for _, fn := range s.syncedSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(bookID)
	}
}

// PendingCount returns the total number of queued outbox entries.
func (s *SyncService) PendingCount() (int, error) {
	return s.repo.CountChanges()
}

// beginSync transitions a book into syncing. Pull and push for one book are
// serialized through this gate.
func (s *SyncService) beginSync(bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status[bookID] == SyncSyncing {
		return &domain.ErrSyncInProgress{BookID: bookID}
	}
	s.status[bookID] = SyncSyncing
	return nil
}

func (s *SyncService) endSync(bookID string, st SyncStatus) {
	s.mu.Lock()
	s.status[bookID] = st
	s.mu.Unlock()
}

// Pull fetches server changes since the book's watermark and applies them
// atomically. The watermark only ever advances to the server-reported time;
// on failure it is left untouched so nothing is skipped on retry.
func (s *SyncService) Pull(ctx context.Context, bookID string) error {
	ctx, span := syncTracer.Start(ctx, "sync.pull")
	defer span.End()
	span.SetAttributes(attribute.String("book_id", bookID))

	if s.net.IsOffline() {
		s.endSync(bookID, SyncOffline)
		s.metrics.RecordPull("offline")
		return nil
	}
	if err := s.beginSync(bookID); err != nil {
		return err
	}

	since, err := s.repo.Watermark(bookID)
	if err != nil {
		s.endSync(bookID, SyncError)
		s.metrics.RecordPull("error")
		return err
	}

	var delta *domain.SyncDelta
	err = resilience.RetryWithBackoff(ctx, s.retry, func() error {
		d, ferr := s.backend.GetChanges(ctx, bookID, since)
		if ferr != nil {
			return ferr
		}
		delta = d
		return nil
	})
	if err != nil {
		s.endSync(bookID, SyncError)
		s.metrics.RecordPull("error")
		s.logger.Warn("sync: pull failed",
			zap.String("book_id", bookID),
			zap.Error(err),
		)
		return err
	}
	if delta == nil {
		s.endSync(bookID, SyncIdle)
		s.metrics.RecordPull("empty")
		return nil
	}

	if err := s.repo.ApplyDelta(bookID, *delta); err != nil {
		s.endSync(bookID, SyncError)
		s.metrics.RecordPull("error")
		return err
	}

	s.endSync(bookID, SyncIdle)
	s.metrics.RecordPull("ok")
	s.notifySynced(bookID)
	s.logger.Debug("sync: pull applied",
		zap.String("book_id", bookID),
		zap.Int("transactions", len(delta.Transactions)),
		zap.Int("pockets", len(delta.Pockets)),
		zap.Int("categories", len(delta.Categories)),
		zap.String("watermark", delta.ServerTime),
	)
	return nil
}

// Push drains the book's pending changes strictly in creation order. A
// conflict halts the drain with the remaining queue intact; the conflicting
// change is surfaced for user-mediated resolution, never auto-discarded. Any
// other failure leaves the change queued for the next drain.
func (s *SyncService) Push(ctx context.Context, bookID string) error {
	ctx, span := syncTracer.Start(ctx, "sync.push")
	defer span.End()
	span.SetAttributes(attribute.String("book_id", bookID))

	if s.net.IsOffline() {
		s.endSync(bookID, SyncOffline)
		s.metrics.RecordPush("offline")
		return nil
	}
	if err := s.beginSync(bookID); err != nil {
		return err
	}
	defer s.updatePendingGauge()

	changes, err := s.repo.ChangesByBook(bookID)
	if err != nil {
		s.endSync(bookID, SyncError)
		s.metrics.RecordPush("error")
		return err
	}

	applied := 0
	defer func() {
		if applied > 0 {
			s.notifySynced(bookID)
		}
	}()

	// A replayed create gets its real id from the server; later changes
	// queued against the temporary id are rewritten before they replay.
	remap := make(map[string]string)

	for _, ch := range changes {
		if serverID, ok := remap[ch.EntityID]; ok {
			ch.EntityID = serverID
		}
		serverID, err := s.applyChange(ctx, ch)
		if err != nil {
			var conflict *domain.ErrConflict
			if errors.As(err, &conflict) {
				s.endSync(bookID, SyncError)
				s.metrics.RecordPush("conflict")
				s.metrics.RecordConflict(ch.EntityType)
				s.logger.Warn("sync: drain halted on conflict",
					zap.String("book_id", bookID),
					zap.String("entity_type", ch.EntityType),
					zap.String("entity_id", ch.EntityID),
				)
				return &domain.ErrConflict{
					EntityType: ch.EntityType,
					EntityID:   ch.EntityID,
					Message:    conflict.Message,
				}
			}
			s.endSync(bookID, SyncError)
			s.metrics.RecordPush("error")
			s.logger.Warn("sync: drain failed, change stays queued",
				zap.String("change_id", ch.ID),
				zap.Error(err),
			)
			return err
		}
		applied++

		if serverID != "" && serverID != ch.EntityID {
			remap[ch.EntityID] = serverID
			// Persist the rewrite so a halted drain resumes against the
			// real id after a restart.
			if rerr := s.repo.ReassignChangeEntity(ch.EntityID, serverID); rerr != nil {
				s.logger.Warn("sync: reassigning queued changes failed",
					zap.String("temp_id", ch.EntityID),
					zap.String("server_id", serverID),
					zap.Error(rerr),
				)
			}
		}

		// The server accepted the change; only now is it safe to drop.
		if err := s.repo.DeleteChange(ch.ID); err != nil {
			s.endSync(bookID, SyncError)
			s.metrics.RecordPush("error")
			return err
		}
	}

	s.endSync(bookID, SyncIdle)
	s.metrics.RecordPush("ok")
	return nil
}

// Sync is one full reconciliation pass: drain the outbox, then pull.
func (s *SyncService) Sync(ctx context.Context, bookID string) error {
	if err := s.Push(ctx, bookID); err != nil {
		return err
	}
	return s.Pull(ctx, bookID)
}

// applyChange replays one outbox entry against the server and mirrors the
// authoritative response into the local store. When a create resolves, the
// server-assigned id is returned so the drain can rewrite later changes still
// referencing the temporary id.
func (s *SyncService) applyChange(ctx context.Context, ch domain.PendingChange) (string, error) {
	switch ch.EntityType {
	case domain.EntityTransaction:
		return s.applyTransactionChange(ctx, ch)
	case domain.EntityPocket:
		return s.applyPocketChange(ctx, ch)
	case domain.EntityCategory:
		return s.applyCategoryChange(ctx, ch)
	case domain.EntityBook:
		return "", s.applyBookChange(ctx, ch)
	default:
		// Unknown entries would wedge the queue forever; they are dropped
		// loudly instead.
		s.logger.Error("sync: unknown pending change entity",
			zap.String("entity_type", ch.EntityType),
			zap.String("change_id", ch.ID),
		)
		return "", nil
	}
}

func (s *SyncService) applyTransactionChange(ctx context.Context, ch domain.PendingChange) (string, error) {
	switch ch.Action {
	case domain.ActionCreate:
		var req domain.CreateTransactionRequest
		if err := json.Unmarshal(ch.Payload, &req); err != nil {
			return "", fmt.Errorf("decode pending create: %w", err)
		}
		tx, err := s.backend.CreateTransaction(ctx, req)
		if err != nil {
			return "", err
		}
		// The optimistic record was stored under a temporary id.
		_ = s.repo.DeleteTransaction(ch.EntityID)
		if tx != nil {
			return tx.ID, s.repo.UpsertTransactions([]domain.Transaction{*tx})
		}
		return "", nil
	case domain.ActionUpdate:
		var req domain.UpdateTransactionRequest
		if err := json.Unmarshal(ch.Payload, &req); err != nil {
			return "", fmt.Errorf("decode pending update: %w", err)
		}
		tx, err := s.backend.UpdateTransaction(ctx, ch.EntityID, req)
		if err != nil {
			return "", err
		}
		if tx != nil {
			return "", s.repo.UpsertTransactions([]domain.Transaction{*tx})
		}
		return "", nil
	case domain.ActionDelete:
		if err := s.backend.DeleteTransaction(ctx, ch.EntityID); err != nil {
			var notFound *domain.ErrNotFound
			if errors.As(err, &notFound) {
				return "", nil // already gone server-side
			}
			return "", err
		}
		return "", nil
	}
	return "", nil
}

func (s *SyncService) applyPocketChange(ctx context.Context, ch domain.PendingChange) (string, error) {
	switch ch.Action {
	case domain.ActionCreate:
		var req domain.CreatePocketRequest
		if err := json.Unmarshal(ch.Payload, &req); err != nil {
			return "", fmt.Errorf("decode pending create: %w", err)
		}
		p, err := s.backend.CreatePocket(ctx, ch.BookID, req)
		if err != nil {
			return "", err
		}
		// The optimistic record was stored under a temporary id.
		_ = s.repo.DeletePocket(ch.EntityID)
		if p != nil {
			return p.ID, s.repo.UpsertPockets([]domain.Pocket{*p})
		}
		return "", nil
	case domain.ActionUpdate:
		var req domain.UpdatePocketRequest
		if err := json.Unmarshal(ch.Payload, &req); err != nil {
			return "", fmt.Errorf("decode pending update: %w", err)
		}
		p, err := s.backend.UpdatePocket(ctx, ch.EntityID, req)
		if err != nil {
			return "", err
		}
		if p != nil {
			return "", s.repo.UpsertPockets([]domain.Pocket{*p})
		}
		return "", nil
	case domain.ActionDelete:
		return "", s.backend.DeletePocket(ctx, ch.EntityID)
	}
	return "", nil
}

func (s *SyncService) applyCategoryChange(ctx context.Context, ch domain.PendingChange) (string, error) {
	switch ch.Action {
	case domain.ActionCreate:
		var req domain.CreateCategoryRequest
		if err := json.Unmarshal(ch.Payload, &req); err != nil {
			return "", fmt.Errorf("decode pending create: %w", err)
		}
		c, err := s.backend.CreateCategory(ctx, ch.BookID, req)
		if err != nil {
			return "", err
		}
		// The optimistic record was stored under a temporary id.
		_ = s.repo.DeleteCategory(ch.EntityID)
		if c != nil {
			return c.ID, s.repo.UpsertCategories([]domain.Category{*c})
		}
		return "", nil
	case domain.ActionUpdate:
		var req domain.UpdateCategoryRequest
		if err := json.Unmarshal(ch.Payload, &req); err != nil {
			return "", fmt.Errorf("decode pending update: %w", err)
		}
		c, err := s.backend.UpdateCategory(ctx, ch.EntityID, req)
		if err != nil {
			return "", err
		}
		if c != nil {
			return "", s.repo.UpsertCategories([]domain.Category{*c})
		}
		return "", nil
	case domain.ActionDelete:
		return "", s.backend.DeleteCategory(ctx, ch.EntityID)
	}
	return "", nil
}

func (s *SyncService) applyBookChange(ctx context.Context, ch domain.PendingChange) error {
	if ch.Action != domain.ActionUpdate {
		return nil // book create/delete are online-only operations
	}
	var req domain.UpdateBookRequest
	if err := json.Unmarshal(ch.Payload, &req); err != nil {
		return fmt.Errorf("decode pending update: %w", err)
	}
	b, err := s.backend.UpdateBook(ctx, ch.EntityID, req)
	if err != nil {
		return err
	}
	if b != nil {
		return s.repo.UpsertBook(*b)
	}
	return nil
}

// StartAutoSync runs a pull for the book at a fixed interval, online and not
// already syncing. Starting a timer for a book that already has one replaces
// it; there is never more than one timer per book.
func (s *SyncService) StartAutoSync(bookID string) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if prev, ok := s.timers[bookID]; ok {
		prev()
	}
	s.timers[bookID] = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.net.IsOffline() || s.Status(bookID) == SyncSyncing {
					continue
				}
				if err := s.Sync(ctx, bookID); err != nil {
					// Background failures are silent toward the user;
					// the next tick retries.
					s.logger.Debug("sync: background pass failed",
						zap.String("book_id", bookID),
						zap.Error(err),
					)
				}
			}
		}
	}()
}

// StopAutoSync cancels the book's timer if one is running.
func (s *SyncService) StopAutoSync(bookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.timers[bookID]; ok {
		cancel()
		delete(s.timers, bookID)
	}
}

// StopAllAutoSync cancels every timer and the connectivity subscription. Used
// on logout so no background work references a dead session.
func (s *SyncService) StopAllAutoSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.timers {
		cancel()
		delete(s.timers, id)
	}
}

// Close tears the engine down completely.
func (s *SyncService) Close() {
	s.StopAllAutoSync()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *SyncService) syncAllKnownBooks(ctx context.Context) {
	books, err := s.repo.Books()
	if err != nil {
		s.logger.Warn("sync: reconnect pass could not list books", zap.Error(err))
		return
	}
	for _, b := range books {
		if err := s.Sync(ctx, b.ID); err != nil {
			s.logger.Debug("sync: reconnect pass failed",
				zap.String("book_id", b.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *SyncService) updatePendingGauge() {
	if n, err := s.repo.CountChanges(); err == nil {
		s.metrics.SetPendingChanges(n)
	}
}
