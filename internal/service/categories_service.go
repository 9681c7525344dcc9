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

var categoriesTracer = otel.Tracer("service/categories")

type categoriesBackend interface {
	ListCategories(ctx context.Context, bookID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, bookID string, req domain.CreateCategoryRequest) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, req domain.UpdateCategoryRequest) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	CreateSubcategory(ctx context.Context, categoryID string, req domain.CreateSubcategoryRequest) (*domain.Subcategory, error)
	DeleteSubcategory(ctx context.Context, id string) error
}

// CategoriesSnapshot is an immutable view of one book's categories.
type CategoriesSnapshot struct {
	BookID     string
	Categories []domain.Category
	Loading    bool
	Err        string
}

// CategoriesService fronts the category tree for one book at a time, with
// the same optimistic create/delete and versioned-update shape as the other
// stores.
type CategoriesService struct {
	repo    localstore.Repository
	backend categoriesBackend
	net     *netmon.Monitor
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	bookID  string
	items   []domain.Category
	loading bool
	errMsg  string

	notifier *notifier
}

func NewCategoriesService(repo localstore.Repository, backend categoriesBackend, net *netmon.Monitor, logger *zap.Logger, metrics *observability.Metrics) *CategoriesService {
	return &CategoriesService{
		repo:     repo,
		backend:  backend,
		net:      net,
		logger:   logger,
		metrics:  metrics,
		notifier: newNotifier(),
	}
}

func (s *CategoriesService) Snapshot() CategoriesSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.Category, len(s.items))
	copy(items, s.items)
	return CategoriesSnapshot{BookID: s.bookID, Categories: items, Loading: s.loading, Err: s.errMsg}
}

func (s *CategoriesService) Subscribe(fn func()) func() {
	return s.notifier.subscribe(fn)
}

// RefreshFromLocal re-reads the local mirror after the sync engine has
// written to it. A refresh for a book other than the loaded one is a no-op.
func (s *CategoriesService) RefreshFromLocal(bookID string) {
	s.mu.Lock()
	current := s.bookID
	s.mu.Unlock()
	if current != bookID {
		return
	}

	cached, err := s.repo.CategoriesByBook(bookID)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.items = cached
	s.mu.Unlock()
	s.notifier.notify()
}

// Load fetches a book's categories, falling back to the local mirror when
// offline or on transport failure.
func (s *CategoriesService) Load(ctx context.Context, bookID string) error {
	ctx, span := categoriesTracer.Start(ctx, "categories.load")
	defer span.End()

	s.mu.Lock()
	s.bookID = bookID
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		return s.loadFromLocal(bookID)
	}

	cats, err := s.backend.ListCategories(ctx, bookID)
	if err != nil {
		var netErr *domain.ErrNetwork
		if errors.As(err, &netErr) {
			return s.loadFromLocal(bookID)
		}
		s.setError(err)
		return err
	}

	if uerr := s.repo.UpsertCategories(cats); uerr != nil {
		s.logger.Warn("categories: mirroring failed", zap.Error(uerr))
	}

	s.mu.Lock()
	s.items = cats
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
	return nil
}

// Create splices a provisional category in immediately; while offline the
// create is queued under the temporary id.
func (s *CategoriesService) Create(ctx context.Context, bookID string, req domain.CreateCategoryRequest) (*domain.Category, error) {
	ctx, span := categoriesTracer.Start(ctx, "categories.create")
	defer span.End()

	now := time.Now().UTC().Format(time.RFC3339)
	provisional := domain.Category{
		ID:        "temp-" + uuid.NewString(),
		BookID:    bookID,
		Name:      req.Name,
		Icon:      req.Icon,
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.items = append(s.items, provisional)
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(provisional.ID, bookID, domain.ActionCreate, req); err != nil {
			s.remove(provisional.ID)
			return nil, err
		}
		if uerr := s.repo.UpsertCategories([]domain.Category{provisional}); uerr != nil {
			s.logger.Warn("categories: mirroring offline create failed", zap.Error(uerr))
		}
		return &provisional, nil
	}

	created, err := s.backend.CreateCategory(ctx, bookID, req)
	if err != nil {
		s.remove(provisional.ID)
		s.setError(err)
		return nil, err
	}
	if created == nil {
		s.remove(provisional.ID)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty create response"}
	}

	s.replace(provisional.ID, *created)
	if err := s.repo.UpsertCategories([]domain.Category{*created}); err != nil {
		s.logger.Warn("categories: mirroring create failed", zap.Error(err))
	}
	return created, nil
}

// Update sends a versioned rename; a stale version restores the prior record
// and surfaces the conflict without touching the local mirror.
func (s *CategoriesService) Update(ctx context.Context, bookID, id string, req domain.UpdateCategoryRequest) (*domain.Category, error) {
	ctx, span := categoriesTracer.Start(ctx, "categories.update")
	defer span.End()

	s.mu.Lock()
	idx := categoryIndex(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "category", ID: id}
	}
	prior := s.items[idx]
	optimistic := prior
	if req.Name != "" {
		optimistic.Name = req.Name
	}
	if req.Icon != "" {
		optimistic.Icon = req.Icon
	}
	s.items[idx] = optimistic
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(id, bookID, domain.ActionUpdate, req); err != nil {
			s.replace(id, prior)
			return nil, err
		}
		if uerr := s.repo.UpsertCategories([]domain.Category{optimistic}); uerr != nil {
			s.logger.Warn("categories: mirroring offline update failed", zap.Error(uerr))
		}
		return &optimistic, nil
	}

	updated, err := s.backend.UpdateCategory(ctx, id, req)
	if err != nil {
		s.replace(id, prior)
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			s.metrics.RecordConflict(domain.EntityCategory)
			return nil, &domain.ErrConflict{EntityType: domain.EntityCategory, EntityID: id, Message: conflict.Message}
		}
		s.setError(err)
		return nil, err
	}
	if updated == nil {
		s.replace(id, prior)
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty update response"}
	}

	s.replace(id, *updated)
	if err := s.repo.UpsertCategories([]domain.Category{*updated}); err != nil {
		s.logger.Warn("categories: mirroring update failed", zap.Error(err))
	}
	return updated, nil
}

// Delete removes the category from view immediately, queued while offline.
func (s *CategoriesService) Delete(ctx context.Context, bookID, id string) error {
	ctx, span := categoriesTracer.Start(ctx, "categories.delete")
	defer span.End()

	s.mu.Lock()
	idx := categoryIndex(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "category", ID: id}
	}
	prior := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mu.Unlock()
	s.notifier.notify()

	if s.net.IsOffline() {
		if err := s.enqueue(id, bookID, domain.ActionDelete, nil); err != nil {
			s.restoreAt(prior, idx)
			return err
		}
		return nil
	}

	if err := s.backend.DeleteCategory(ctx, id); err != nil {
		s.restoreAt(prior, idx)
		s.setError(err)
		return err
	}
	return nil
}

// AddSubcategory is online-only: subcategories are leaves with no version
// counter and no offline replay path.
func (s *CategoriesService) AddSubcategory(ctx context.Context, categoryID, name string) (*domain.Subcategory, error) {
	ctx, span := categoriesTracer.Start(ctx, "categories.add_subcategory")
	defer span.End()

	if s.net.IsOffline() {
		return nil, &domain.ErrNetwork{Op: "create subcategory", Err: errors.New("offline")}
	}

	sub, err := s.backend.CreateSubcategory(ctx, categoryID, domain.CreateSubcategoryRequest{Name: name})
	if err != nil {
		s.setError(err)
		return nil, err
	}
	if sub == nil {
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty create response"}
	}

	s.mu.Lock()
	if idx := categoryIndex(s.items, categoryID); idx >= 0 {
		s.items[idx].Subcategories = append(s.items[idx].Subcategories, *sub)
	}
	s.mu.Unlock()
	s.notifier.notify()
	return sub, nil
}

// RemoveSubcategory is online-only, with optimistic removal and restore.
func (s *CategoriesService) RemoveSubcategory(ctx context.Context, categoryID, id string) error {
	ctx, span := categoriesTracer.Start(ctx, "categories.remove_subcategory")
	defer span.End()

	if s.net.IsOffline() {
		return &domain.ErrNetwork{Op: "delete subcategory", Err: errors.New("offline")}
	}

	s.mu.Lock()
	var prior *domain.Subcategory
	catIdx := categoryIndex(s.items, categoryID)
	if catIdx >= 0 {
		subs := s.items[catIdx].Subcategories
		for i := range subs {
			if subs[i].ID == id {
				p := subs[i]
				prior = &p
				s.items[catIdx].Subcategories = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	s.notifier.notify()

	if err := s.backend.DeleteSubcategory(ctx, id); err != nil {
		if prior != nil {
			s.mu.Lock()
			if idx := categoryIndex(s.items, categoryID); idx >= 0 {
				s.items[idx].Subcategories = append(s.items[idx].Subcategories, *prior)
			}
			s.mu.Unlock()
			s.notifier.notify()
		}
		s.setError(err)
		return err
	}
	return nil
}

// --- internals ---

func (s *CategoriesService) enqueue(entityID, bookID string, action domain.ChangeAction, payload any) error {
	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &domain.ErrValidation{Message: fmt.Sprintf("encode pending change: %v", err)}
		}
		raw = b
	}
	err := s.repo.EnqueueChange(domain.PendingChange{
		ID:         uuid.NewString(),
		EntityType: domain.EntityCategory,
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

func (s *CategoriesService) loadFromLocal(bookID string) error {
	cached, err := s.repo.CategoriesByBook(bookID)
	s.mu.Lock()
	if err == nil {
		s.items = cached
	} else {
		s.errMsg = err.Error()
	}
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
	return err
}

func (s *CategoriesService) replace(id string, c domain.Category) {
	s.mu.Lock()
	if idx := categoryIndex(s.items, id); idx >= 0 {
		s.items[idx] = c
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *CategoriesService) remove(id string) {
	s.mu.Lock()
	if idx := categoryIndex(s.items, id); idx >= 0 {
		s.items = append(s.items[:idx], s.items[idx+1:]...)
	}
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *CategoriesService) restoreAt(c domain.Category, idx int) {
	s.mu.Lock()
	if idx > len(s.items) {
		idx = len(s.items)
	}
	s.items = append(s.items[:idx], append([]domain.Category{c}, s.items[idx:]...)...)
	s.mu.Unlock()
	s.notifier.notify()
}

func (s *CategoriesService) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.loading = false
	s.mu.Unlock()
	s.notifier.notify()
}

func categoryIndex(items []domain.Category, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
