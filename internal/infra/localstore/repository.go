// Package localstore is the durable client-side cache: entity mirrors,
// per-book sync watermarks, and the outbox of unsent mutations. The sqlite
// implementation survives restarts; the memory implementation is the
// degraded mode when storage is unavailable.
package localstore

import (
	"time"

	"github.com/genzilabs/monger-client/internal/domain"
)

// Repository is the contract shared by the sqlite and memory stores.
// All writes are idempotent upserts keyed by identifier.
type Repository interface {
	UpsertTransactions(txs []domain.Transaction) error
	TransactionsByPocket(pocketID string) ([]domain.Transaction, error)
	GetTransaction(id string) (*domain.Transaction, error)
	DeleteTransaction(id string) error

	UpsertPockets(ps []domain.Pocket) error
	PocketsByBook(bookID string) ([]domain.Pocket, error)
	DeletePocket(id string) error

	UpsertCategories(cs []domain.Category) error
	CategoriesByBook(bookID string) ([]domain.Category, error)
	DeleteCategory(id string) error

	UpsertBook(b domain.Book) error
	GetBook(id string) (*domain.Book, error)
	Books() ([]domain.Book, error)

	// Watermark returns the last confirmed sync point for a book, or ""
	// if the book has never synced.
	Watermark(bookID string) (string, error)
	// SetWatermark advances the watermark. A timestamp older than the
	// stored one is ignored: the watermark never moves backwards.
	SetWatermark(bookID, serverTime string) error
	// ApplyDelta upserts a pull response and advances the watermark in a
	// single transaction scope, so a mid-write crash cannot leave the
	// watermark ahead of its data.
	ApplyDelta(bookID string, delta domain.SyncDelta) error

	EnqueueChange(ch domain.PendingChange) error
	DeleteChange(id string) error
	// ReassignChangeEntity rewrites queued changes still referencing a
	// temporary entity id once the server has assigned the real one.
	ReassignChangeEntity(oldID, newID string) error
	// ChangesByBook returns pending changes in creation order (insertion
	// order = causal order).
	ChangesByBook(bookID string) ([]domain.PendingChange, error)
	CountChanges() (int, error)

	// Reset evicts all cached data (logout / full teardown).
	Reset() error
	Close() error
}

// watermarkAdvances reports whether next is strictly ahead of prev. Both
// are server-supplied RFC3339 timestamps; an unparseable value only wins
// over an empty one.
func watermarkAdvances(prev, next string) bool {
	if next == "" {
		return false
	}
	if prev == "" {
		return true
	}

	pt, perr := time.Parse(time.RFC3339Nano, prev)
	nt, nerr := time.Parse(time.RFC3339Nano, next)
	if perr != nil || nerr != nil {
		return false
	}
	return nt.After(pt)
}
