package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
)

func TestRecurringLoad_PopulatesSnapshot(t *testing.T) {
	backend := &mockBackend{
		listRecurringFn: func() ([]domain.RecurringTransaction, error) {
			return []domain.RecurringTransaction{
				{ID: "rec-1", Name: "Rent", AmountCents: 1200000, Frequency: domain.FrequencyMonthly},
				{ID: "rec-2", Name: "Gym", AmountCents: 150000, Frequency: domain.FrequencyMonthly},
			}, nil
		},
	}
	s := NewRecurringService(backend, netmon.New(netmon.Online), zap.NewNop())

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 2 || snap.Schedules[0].Name != "Rent" {
		t.Errorf("unexpected snapshot: %+v", snap.Schedules)
	}
	if snap.Loading {
		t.Error("loading flag stuck")
	}
}

func TestRecurringCreate_PrependsSchedule(t *testing.T) {
	backend := &mockBackend{}
	s := NewRecurringService(backend, netmon.New(netmon.Online), zap.NewNop())

	created, err := s.Create(context.Background(), domain.CreateRecurringRequest{
		PocketID:    "p-1",
		Name:        "Netflix",
		AmountCents: 65000,
		Type:        domain.TransactionExpense,
		Frequency:   domain.FrequencyMonthly,
		StartDate:   "2026-09-01",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].ID != created.ID {
		t.Errorf("created schedule not in snapshot: %+v", snap.Schedules)
	}
}

func TestRecurringMutations_RequireNetwork(t *testing.T) {
	backend := &mockBackend{}
	s := NewRecurringService(backend, netmon.New(netmon.Offline), zap.NewNop())

	var netErr *domain.ErrNetwork
	if _, err := s.Create(context.Background(), domain.CreateRecurringRequest{Name: "X"}); !errors.As(err, &netErr) {
		t.Errorf("offline create must fail with *domain.ErrNetwork, got %v", err)
	}
	if err := s.Load(context.Background()); !errors.As(err, &netErr) {
		t.Errorf("offline load must fail with *domain.ErrNetwork, got %v", err)
	}
	if calls := backend.recorded(); len(calls) != 0 {
		t.Errorf("expected no network calls while offline, got %v", calls)
	}
}

func TestRecurringDelete_RestoresOnRejection(t *testing.T) {
	backend := &mockBackend{
		listRecurringFn: func() ([]domain.RecurringTransaction, error) {
			return []domain.RecurringTransaction{
				{ID: "rec-1", Name: "Rent"},
				{ID: "rec-2", Name: "Gym"},
			}, nil
		},
		deleteRecurringFn: func(id string) error {
			return &domain.ErrNetwork{Op: "DELETE", Err: errors.New("timeout")}
		},
	}
	s := NewRecurringService(backend, netmon.New(netmon.Online), zap.NewNop())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := s.Delete(context.Background(), "rec-1"); err == nil {
		t.Fatal("expected delete failure")
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 2 || snap.Schedules[0].ID != "rec-1" {
		t.Errorf("rejected delete must restore the schedule in place: %+v", snap.Schedules)
	}
}
