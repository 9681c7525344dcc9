package service

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
)

var recurringTracer = otel.Tracer("service/recurring")

type recurringBackend interface {
	ListRecurring(ctx context.Context) ([]domain.RecurringTransaction, error)
	CreateRecurring(ctx context.Context, req domain.CreateRecurringRequest) (*domain.RecurringTransaction, error)
	UpdateRecurring(ctx context.Context, id string, req domain.UpdateRecurringRequest) (*domain.RecurringTransaction, error)
	DeleteRecurring(ctx context.Context, id string) error
}

// RecurringSnapshot is an immutable view of the user's recurring schedules.
type RecurringSnapshot struct {
	Schedules []domain.RecurringTransaction
	Loading   bool
	Err       string
}

// RecurringService fronts the user's recurring transaction schedules. The
// server owns the firing clock, so every mutation is online-only; only the
// delete is optimistic, restored on rejection.
type RecurringService struct {
	backend recurringBackend
	net     *netmon.Monitor
	logger  *zap.Logger

	mu      sync.Mutex
	items   []domain.RecurringTransaction
	loading bool
	errMsg  string

	notifier *notifier
}

func NewRecurringService(backend recurringBackend, net *netmon.Monitor, logger *zap.Logger) *RecurringService {
	return &RecurringService{backend: backend, net: net, logger: logger, notifier: newNotifier()}
}

func (s *RecurringService) Snapshot() RecurringSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.RecurringTransaction, len(s.items))
	copy(items, s.items)
	return RecurringSnapshot{Schedules: items, Loading: s.loading, Err: s.errMsg}
}

func (s *RecurringService) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

func (s *RecurringService) Load(ctx context.Context) error {
	ctx, span := recurringTracer.Start(ctx, "recurring.load")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "list recurring", Err: errors.New("offline")}
	}

	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notifier.notify()

	items, err := s.backend.ListRecurring(ctx)
	s.mu.Lock()
	if err != nil {
		s.errMsg = err.Error()
	} else {
		s.items = items
	}
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
	return err
}

func (s *RecurringService) Create(ctx context.Context, req domain.CreateRecurringRequest) (*domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "recurring.create")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "create recurring", Err: errors.New("offline")}
	}

	created, err := s.backend.CreateRecurring(ctx, req)
	if err != nil {
		return nil, err
	}
	if created != nil {
		s.mu.Lock()
		s.items = append([]domain.RecurringTransaction{*created}, s.items...)
		s.mu.Unlock()
		s.notifier.notify()
	}
	return created, nil
}

func (s *RecurringService) Update(ctx context.Context, id string, req domain.UpdateRecurringRequest) (*domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "recurring.update")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "update recurring", Err: errors.New("offline")}
	}

	updated, err := s.backend.UpdateRecurring(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		s.mu.Lock()
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i] = *updated
				break
			}
		}
		s.mu.Unlock()
		s.notifier.notify()
	}
	return updated, nil
}

// Delete removes the schedule from view immediately and restores it at its
// prior position if the server rejects the delete.
func (s *RecurringService) Delete(ctx context.Context, id string) error {
	ctx, span := recurringTracer.Start(ctx, "recurring.delete")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "delete recurring", Err: errors.New("offline")}
	}

	s.mu.Lock()
	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "recurring transaction", ID: id}
	}
	prior := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mu.Unlock()
	s.notifier.notify()

	if err := s.backend.DeleteRecurring(ctx, id); err != nil {
		s.mu.Lock()
		if idx > len(s.items) {
			idx = len(s.items)
		}
		s.items = append(s.items[:idx], append([]domain.RecurringTransaction{prior}, s.items[idx:]...)...)
		s.mu.Unlock()
		s.notifier.notify()
		return err
	}
	return nil
}
