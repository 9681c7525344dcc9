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

var budgetsTracer = otel.Tracer("service/budgets")

type budgetsBackend interface {
	ListBudgets(ctx context.Context, bookID string) ([]domain.Budget, error)
	CreateBudget(ctx context.Context, bookID string, req domain.CreateBudgetRequest) (*domain.Budget, error)
	UpdateBudget(ctx context.Context, id string, amountCents int64) (*domain.Budget, error)
	DeleteBudget(ctx context.Context, id string) error
}

// BudgetsSnapshot is an immutable view of one book's budgets.
type BudgetsSnapshot struct {
	BookID  string
	Budgets []domain.Budget
	Loading bool
	Err     string
}

// BudgetsService is a thin non-optimistic store: budgets carry server-computed
// spent totals, so every mutation waits for the authoritative answer. All
// operations are online-only.
type BudgetsService struct {
	backend budgetsBackend
	net     *netmon.Monitor
	logger  *zap.Logger

	mu      sync.Mutex
	bookID  string
	items   []domain.Budget
	loading bool
	errMsg  string

	notifier *notifier
}

func NewBudgetsService(backend budgetsBackend, net *netmon.Monitor, logger *zap.Logger) *BudgetsService {
	return &BudgetsService{backend: backend, net: net, logger: logger, notifier: newNotifier()}
}

func (s *BudgetsService) Snapshot() BudgetsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.Budget, len(s.items))
	copy(items, s.items)
	return BudgetsSnapshot{BookID: s.bookID, Budgets: items, Loading: s.loading, Err: s.errMsg}
}

func (s *BudgetsService) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

func (s *BudgetsService) Load(ctx context.Context, bookID string) error {
	ctx, span := budgetsTracer.Start(ctx, "budgets.load")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "list budgets", Err: errors.New("offline")}
	}

	s.mu.Lock()
	s.bookID = bookID
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notifier.notify()

	items, err := s.backend.ListBudgets(ctx, bookID)
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

func (s *BudgetsService) Create(ctx context.Context, bookID string, req domain.CreateBudgetRequest) (*domain.Budget, error) {
	ctx, span := budgetsTracer.Start(ctx, "budgets.create")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "create budget", Err: errors.New("offline")}
	}

	created, err := s.backend.CreateBudget(ctx, bookID, req)
	if err != nil {
		return nil, err
	}
	if created != nil {
		s.mu.Lock()
		s.items = append(s.items, *created)
		s.mu.Unlock()
		s.notifier.notify()
	}
	return created, nil
}

func (s *BudgetsService) Update(ctx context.Context, id string, amountCents int64) (*domain.Budget, error) {
	ctx, span := budgetsTracer.Start(ctx, "budgets.update")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "update budget", Err: errors.New("offline")}
	}

	updated, err := s.backend.UpdateBudget(ctx, id, amountCents)
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

func (s *BudgetsService) Delete(ctx context.Context, id string) error {
	ctx, span := budgetsTracer.Start(ctx, "budgets.delete")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "delete budget", Err: errors.New("offline")}
	}

	if err := s.backend.DeleteBudget(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}
