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

var goalsTracer = otel.Tracer("service/goals")

type goalsBackend interface {
	ListGoals(ctx context.Context, bookID string) ([]domain.Goal, error)
	CreateGoal(ctx context.Context, bookID string, req domain.CreateGoalRequest) (*domain.Goal, error)
	ContributeToGoal(ctx context.Context, id string, amountCents int64) (*domain.Goal, error)
	DeleteGoal(ctx context.Context, id string) error
}

// GoalsSnapshot is an immutable view of one book's savings goals.
type GoalsSnapshot struct {
	BookID  string
	Goals   []domain.Goal
	Loading bool
	Err     string
}

// GoalsService is a thin non-optimistic store; contributions move real money
// between pockets server-side, so every mutation is online-only.
type GoalsService struct {
	backend goalsBackend
	net     *netmon.Monitor
	logger  *zap.Logger

	mu      sync.Mutex
	bookID  string
	items   []domain.Goal
	loading bool
	errMsg  string

	notifier *notifier
}

func NewGoalsService(backend goalsBackend, net *netmon.Monitor, logger *zap.Logger) *GoalsService {
	return &GoalsService{backend: backend, net: net, logger: logger, notifier: newNotifier()}
}

func (s *GoalsService) Snapshot() GoalsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.Goal, len(s.items))
	copy(items, s.items)
	return GoalsSnapshot{BookID: s.bookID, Goals: items, Loading: s.loading, Err: s.errMsg}
}

func (s *GoalsService) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

func (s *GoalsService) Load(ctx context.Context, bookID string) error {
	ctx, span := goalsTracer.Start(ctx, "goals.load")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "list goals", Err: errors.New("offline")}
	}

	s.mu.Lock()
	s.bookID = bookID
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notifier.notify()

	items, err := s.backend.ListGoals(ctx, bookID)
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

func (s *GoalsService) Create(ctx context.Context, bookID string, req domain.CreateGoalRequest) (*domain.Goal, error) {
	ctx, span := goalsTracer.Start(ctx, "goals.create")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "create goal", Err: errors.New("offline")}
	}

	created, err := s.backend.CreateGoal(ctx, bookID, req)
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

// Contribute adds to a goal's saved amount.
func (s *GoalsService) Contribute(ctx context.Context, id string, amountCents int64) (*domain.Goal, error) {
	ctx, span := goalsTracer.Start(ctx, "goals.contribute")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "contribute to goal", Err: errors.New("offline")}
	}

	updated, err := s.backend.ContributeToGoal(ctx, id, amountCents)
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

func (s *GoalsService) Delete(ctx context.Context, id string) error {
	ctx, span := goalsTracer.Start(ctx, "goals.delete")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "delete goal", Err: errors.New("offline")}
	}

	if err := s.backend.DeleteGoal(ctx, id); err != nil {
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
