package localstore

import (
	"sort"
	"sync"

	"github.com/genzilabs/monger-client/internal/domain"
)

// Memory is the in-memory Repository used when persistent storage is
// unavailable (quota, disabled, open failure). Same semantics as SQLite,
// no durability.
type Memory struct {
	mu           sync.RWMutex
	transactions map[string]domain.Transaction
	pockets      map[string]domain.Pocket
	categories   map[string]domain.Category
	books        map[string]domain.Book
	watermarks   map[string]string
	outbox       []memChange
	nextSeq      int64
}

type memChange struct {
	seq    int64
	change domain.PendingChange
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.transactions = make(map[string]domain.Transaction)
	m.pockets = make(map[string]domain.Pocket)
	m.categories = make(map[string]domain.Category)
	m.books = make(map[string]domain.Book)
	m.watermarks = make(map[string]string)
	m.outbox = nil
}

func (m *Memory) UpsertTransactions(txs []domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range txs {
		m.transactions[t.ID] = t
	}
	return nil
}

func (m *Memory) TransactionsByPocket(pocketID string) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Transaction
	for _, t := range m.transactions {
		if t.PocketID == pocketID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetTransaction(id string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return &t, nil
}

func (m *Memory) DeleteTransaction(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, id)
	return nil
}

func (m *Memory) UpsertPockets(ps []domain.Pocket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		m.pockets[p.ID] = p
	}
	return nil
}

func (m *Memory) PocketsByBook(bookID string) ([]domain.Pocket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Pocket
	for _, p := range m.pockets {
		if p.BookID == bookID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeletePocket(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pockets, id)
	return nil
}

func (m *Memory) UpsertCategories(cs []domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cs {
		m.categories[c.ID] = c
	}
	return nil
}

func (m *Memory) CategoriesByBook(bookID string) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Category
	for _, c := range m.categories {
		if c.BookID == bookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteCategory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, id)
	return nil
}

func (m *Memory) UpsertBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

func (m *Memory) GetBook(id string) (*domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "book", ID: id}
	}
	return &b, nil
}

func (m *Memory) Books() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Watermark(bookID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermarks[bookID], nil
}

func (m *Memory) SetWatermark(bookID, serverTime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if watermarkAdvances(m.watermarks[bookID], serverTime) {
		m.watermarks[bookID] = serverTime
	}
	return nil
}

func (m *Memory) ApplyDelta(bookID string, delta domain.SyncDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range delta.Transactions {
		m.transactions[t.ID] = t
	}
	for _, p := range delta.Pockets {
		m.pockets[p.ID] = p
	}
	for _, c := range delta.Categories {
		m.categories[c.ID] = c
	}
	if watermarkAdvances(m.watermarks[bookID], delta.ServerTime) {
		m.watermarks[bookID] = delta.ServerTime
	}
	return nil
}

func (m *Memory) EnqueueChange(ch domain.PendingChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	m.outbox = append(m.outbox, memChange{seq: m.nextSeq, change: ch})
	return nil
}

func (m *Memory) ReassignChangeEntity(oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.outbox {
		if m.outbox[i].change.EntityID == oldID {
			m.outbox[i].change.EntityID = newID
		}
	}
	return nil
}

func (m *Memory) DeleteChange(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.outbox {
		if e.change.ID == id {
			m.outbox = append(m.outbox[:i], m.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ChangesByBook(bookID string) ([]domain.PendingChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []memChange
	for _, e := range m.outbox {
		if e.change.BookID == bookID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].change.CreatedAt.Equal(entries[j].change.CreatedAt) {
			return entries[i].change.CreatedAt.Before(entries[j].change.CreatedAt)
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]domain.PendingChange, len(entries))
	for i, e := range entries {
		out[i] = e.change
	}
	return out, nil
}

func (m *Memory) CountChanges() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.outbox), nil
}

func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *Memory) Close() error { return nil }
