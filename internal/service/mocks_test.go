package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/api"
)

// mockBackend is a hand-written fake of the HTTP gateway. Every method has a
// working default (echo the request back with a server id) and an optional
// override hook; calls are recorded in order for drain assertions.
type mockBackend struct {
	mu    sync.Mutex
	calls []string

	getChangesFn        func(bookID, since string) (*domain.SyncDelta, error)
	createTransactionFn func(req domain.CreateTransactionRequest) (*domain.Transaction, error)
	updateTransactionFn func(id string, req domain.UpdateTransactionRequest) (*domain.Transaction, error)
	deleteTransactionFn func(id string) error
	createTransferFn    func(req domain.CreateTransferRequest) error
	listByPocketFn      func(pocketID string, opts api.ListOptions) (*domain.TransactionPage, error)
	monthlySummaryFn    func(bookID string, month, year int) (*domain.MonthlySummary, error)

	listBooksFn       func() ([]domain.Book, error)
	createBookFn      func(req domain.CreateBookRequest) (*domain.Book, error)
	updateBookFn      func(id string, req domain.UpdateBookRequest) (*domain.Book, error)
	listPocketsFn     func(bookID string) ([]domain.Pocket, error)
	createPocketFn    func(bookID string, req domain.CreatePocketRequest) (*domain.Pocket, error)
	updatePocketFn    func(id string, req domain.UpdatePocketRequest) (*domain.Pocket, error)
	reconcilePocketFn func(id string, req domain.ReconcileRequest) (*domain.Pocket, error)

	listCategoriesFn func(bookID string) ([]domain.Category, error)
	updateCategoryFn func(id string, req domain.UpdateCategoryRequest) (*domain.Category, error)

	listRecurringFn   func() ([]domain.RecurringTransaction, error)
	deleteRecurringFn func(id string) error

	loginFn  func(req domain.LoginRequest) (*domain.AuthResponse, error)
	logoutFn func() error
}

func (m *mockBackend) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockBackend) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// --- sync ---

func (m *mockBackend) GetChanges(_ context.Context, bookID, since string) (*domain.SyncDelta, error) {
	m.record("GetChanges " + bookID)
	if m.getChangesFn != nil {
		return m.getChangesFn(bookID, since)
	}
	return &domain.SyncDelta{ServerTime: "2026-08-29T10:00:00Z"}, nil
}

// --- transactions ---

func (m *mockBackend) CreateTransaction(_ context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	m.record("CreateTransaction " + req.Name)
	if m.createTransactionFn != nil {
		return m.createTransactionFn(req)
	}
	return &domain.Transaction{
		ID:          "srv-" + uuid.NewString(),
		PocketID:    req.PocketID,
		Name:        req.Name,
		AmountCents: req.AmountCents,
		Type:        req.Type,
		Date:        req.Date,
		Version:     1,
		CreatedAt:   "2026-08-29T10:00:00Z",
		UpdatedAt:   "2026-08-29T10:00:00Z",
	}, nil
}

func (m *mockBackend) UpdateTransaction(_ context.Context, id string, req domain.UpdateTransactionRequest) (*domain.Transaction, error) {
	m.record("UpdateTransaction " + id)
	if m.updateTransactionFn != nil {
		return m.updateTransactionFn(id, req)
	}
	return &domain.Transaction{
		ID:          id,
		Name:        req.Name,
		AmountCents: req.AmountCents,
		Version:     req.Version + 1,
		UpdatedAt:   "2026-08-29T10:00:00Z",
	}, nil
}

func (m *mockBackend) DeleteTransaction(_ context.Context, id string) error {
	m.record("DeleteTransaction " + id)
	if m.deleteTransactionFn != nil {
		return m.deleteTransactionFn(id)
	}
	return nil
}

func (m *mockBackend) CreateTransfer(_ context.Context, req domain.CreateTransferRequest) error {
	m.record("CreateTransfer " + req.Name)
	if m.createTransferFn != nil {
		return m.createTransferFn(req)
	}
	return nil
}

func (m *mockBackend) TransactionsByPocket(_ context.Context, pocketID string, opts api.ListOptions) (*domain.TransactionPage, error) {
	m.record("TransactionsByPocket " + pocketID)
	if m.listByPocketFn != nil {
		return m.listByPocketFn(pocketID, opts)
	}
	return &domain.TransactionPage{}, nil
}

func (m *mockBackend) MonthlySummary(_ context.Context, bookID string, month, year int) (*domain.MonthlySummary, error) {
	m.record(fmt.Sprintf("MonthlySummary %s %d-%d", bookID, year, month))
	if m.monthlySummaryFn != nil {
		return m.monthlySummaryFn(bookID, month, year)
	}
	return &domain.MonthlySummary{Month: month, Year: year}, nil
}

func (m *mockBackend) CategoryBreakdown(_ context.Context, bookID, txType string, month, year int) ([]domain.CategoryBreakdown, error) {
	m.record("CategoryBreakdown " + bookID)
	return nil, nil
}

// --- books / pockets ---

func (m *mockBackend) ListBooks(_ context.Context) ([]domain.Book, error) {
	m.record("ListBooks")
	if m.listBooksFn != nil {
		return m.listBooksFn()
	}
	return nil, nil
}

func (m *mockBackend) GetBook(_ context.Context, id string) (*domain.Book, error) {
	m.record("GetBook " + id)
	return &domain.Book{ID: id}, nil
}

func (m *mockBackend) CreateBook(_ context.Context, req domain.CreateBookRequest) (*domain.Book, error) {
	m.record("CreateBook " + req.Name)
	if m.createBookFn != nil {
		return m.createBookFn(req)
	}
	return &domain.Book{ID: "srv-" + uuid.NewString(), Name: req.Name, Version: 1}, nil
}

func (m *mockBackend) UpdateBook(_ context.Context, id string, req domain.UpdateBookRequest) (*domain.Book, error) {
	m.record("UpdateBook " + id)
	if m.updateBookFn != nil {
		return m.updateBookFn(id, req)
	}
	return &domain.Book{ID: id, Name: req.Name, Version: req.Version + 1}, nil
}

func (m *mockBackend) DeleteBook(_ context.Context, id string) error {
	m.record("DeleteBook " + id)
	return nil
}

func (m *mockBackend) ListPockets(_ context.Context, bookID string) ([]domain.Pocket, error) {
	m.record("ListPockets " + bookID)
	if m.listPocketsFn != nil {
		return m.listPocketsFn(bookID)
	}
	return nil, nil
}

func (m *mockBackend) CreatePocket(_ context.Context, bookID string, req domain.CreatePocketRequest) (*domain.Pocket, error) {
	m.record("CreatePocket " + req.Name)
	if m.createPocketFn != nil {
		return m.createPocketFn(bookID, req)
	}
	return &domain.Pocket{ID: "srv-" + uuid.NewString(), BookID: bookID, Name: req.Name, Version: 1}, nil
}

func (m *mockBackend) UpdatePocket(_ context.Context, id string, req domain.UpdatePocketRequest) (*domain.Pocket, error) {
	m.record("UpdatePocket " + id)
	if m.updatePocketFn != nil {
		return m.updatePocketFn(id, req)
	}
	return &domain.Pocket{ID: id, Name: req.Name, Version: req.Version + 1}, nil
}

func (m *mockBackend) DeletePocket(_ context.Context, id string) error {
	m.record("DeletePocket " + id)
	return nil
}

func (m *mockBackend) ReconcilePocket(_ context.Context, id string, req domain.ReconcileRequest) (*domain.Pocket, error) {
	m.record("ReconcilePocket " + id)
	if m.reconcilePocketFn != nil {
		return m.reconcilePocketFn(id, req)
	}
	return &domain.Pocket{ID: id, BalanceCents: req.NewBalanceCents, Version: 2}, nil
}

// --- categories ---

func (m *mockBackend) ListCategories(_ context.Context, bookID string) ([]domain.Category, error) {
	m.record("ListCategories " + bookID)
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(bookID)
	}
	return nil, nil
}

func (m *mockBackend) CreateCategory(_ context.Context, bookID string, req domain.CreateCategoryRequest) (*domain.Category, error) {
	m.record("CreateCategory " + req.Name)
	return &domain.Category{ID: "srv-" + uuid.NewString(), BookID: bookID, Name: req.Name, Type: req.Type, Version: 1}, nil
}

func (m *mockBackend) UpdateCategory(_ context.Context, id string, req domain.UpdateCategoryRequest) (*domain.Category, error) {
	m.record("UpdateCategory " + id)
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(id, req)
	}
	return &domain.Category{ID: id, Name: req.Name, Version: req.Version + 1}, nil
}

func (m *mockBackend) DeleteCategory(_ context.Context, id string) error {
	m.record("DeleteCategory " + id)
	return nil
}

func (m *mockBackend) CreateSubcategory(_ context.Context, categoryID string, req domain.CreateSubcategoryRequest) (*domain.Subcategory, error) {
	m.record("CreateSubcategory " + req.Name)
	return &domain.Subcategory{ID: "srv-" + uuid.NewString(), CategoryID: categoryID, Name: req.Name}, nil
}

func (m *mockBackend) DeleteSubcategory(_ context.Context, id string) error {
	m.record("DeleteSubcategory " + id)
	return nil
}

// --- budgets / goals ---

func (m *mockBackend) ListBudgets(_ context.Context, bookID string) ([]domain.Budget, error) {
	m.record("ListBudgets " + bookID)
	return nil, nil
}

func (m *mockBackend) CreateBudget(_ context.Context, bookID string, req domain.CreateBudgetRequest) (*domain.Budget, error) {
	m.record("CreateBudget")
	return &domain.Budget{ID: "srv-" + uuid.NewString(), BookID: bookID, CategoryID: req.CategoryID, AmountCents: req.AmountCents}, nil
}

func (m *mockBackend) UpdateBudget(_ context.Context, id string, amountCents int64) (*domain.Budget, error) {
	m.record("UpdateBudget " + id)
	return &domain.Budget{ID: id, AmountCents: amountCents}, nil
}

func (m *mockBackend) DeleteBudget(_ context.Context, id string) error {
	m.record("DeleteBudget " + id)
	return nil
}

func (m *mockBackend) ListGoals(_ context.Context, bookID string) ([]domain.Goal, error) {
	m.record("ListGoals " + bookID)
	return nil, nil
}

func (m *mockBackend) CreateGoal(_ context.Context, bookID string, req domain.CreateGoalRequest) (*domain.Goal, error) {
	m.record("CreateGoal " + req.Name)
	return &domain.Goal{ID: "srv-" + uuid.NewString(), BookID: bookID, Name: req.Name, TargetCents: req.TargetCents}, nil
}

func (m *mockBackend) ContributeToGoal(_ context.Context, id string, amountCents int64) (*domain.Goal, error) {
	m.record("ContributeToGoal " + id)
	return &domain.Goal{ID: id, CurrentCents: amountCents}, nil
}

func (m *mockBackend) DeleteGoal(_ context.Context, id string) error {
	m.record("DeleteGoal " + id)
	return nil
}

// --- recurring ---

func (m *mockBackend) ListRecurring(_ context.Context) ([]domain.RecurringTransaction, error) {
	m.record("ListRecurring")
	if m.listRecurringFn != nil {
		return m.listRecurringFn()
	}
	return nil, nil
}

func (m *mockBackend) CreateRecurring(_ context.Context, req domain.CreateRecurringRequest) (*domain.RecurringTransaction, error) {
	m.record("CreateRecurring " + req.Name)
	return &domain.RecurringTransaction{
		ID:          "srv-" + uuid.NewString(),
		PocketID:    req.PocketID,
		Name:        req.Name,
		AmountCents: req.AmountCents,
		Type:        req.Type,
		Frequency:   req.Frequency,
		StartDate:   req.StartDate,
		NextDate:    req.StartDate,
	}, nil
}

func (m *mockBackend) UpdateRecurring(_ context.Context, id string, req domain.UpdateRecurringRequest) (*domain.RecurringTransaction, error) {
	m.record("UpdateRecurring " + id)
	return &domain.RecurringTransaction{ID: id, Name: req.Name, AmountCents: req.AmountCents, Frequency: req.Frequency}, nil
}

func (m *mockBackend) DeleteRecurring(_ context.Context, id string) error {
	m.record("DeleteRecurring " + id)
	if m.deleteRecurringFn != nil {
		return m.deleteRecurringFn(id)
	}
	return nil
}

// --- auth ---

func (m *mockBackend) Login(_ context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	m.record("Login " + req.Email)
	if m.loginFn != nil {
		return m.loginFn(req)
	}
	return &domain.AuthResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         domain.User{ID: "user-1", Email: req.Email},
	}, nil
}

func (m *mockBackend) Register(_ context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	m.record("Register " + req.Email)
	return &domain.AuthResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         domain.User{ID: "user-1", Email: req.Email, Name: req.Name},
	}, nil
}

func (m *mockBackend) Logout(_ context.Context) error {
	m.record("Logout")
	if m.logoutFn != nil {
		return m.logoutFn()
	}
	return nil
}

func (m *mockBackend) GetProfile(_ context.Context) (*domain.User, error) {
	m.record("GetProfile")
	return &domain.User{ID: "user-1"}, nil
}
