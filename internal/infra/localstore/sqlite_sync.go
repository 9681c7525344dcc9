package localstore

import (
	"database/sql"
	"time"

	"github.com/genzilabs/monger-client/internal/domain"
)

func (s *SQLite) Watermark(bookID string) (string, error) {
	var wm string
	err := s.db.QueryRow(`SELECT last_synced_at FROM sync_meta WHERE book_id = ?`, bookID).Scan(&wm)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &domain.ErrStorage{Op: "watermark.get", Err: err}
	}
	return wm, nil
}

func (s *SQLite) SetWatermark(bookID, serverTime string) error {
	current, err := s.Watermark(bookID)
	if err != nil {
		return err
	}
	if !watermarkAdvances(current, serverTime) {
		return nil
	}

	_, err = s.db.Exec(`
		INSERT INTO sync_meta (book_id, last_synced_at) VALUES (?, ?)
		ON CONFLICT(book_id) DO UPDATE SET last_synced_at = excluded.last_synced_at
	`, bookID, serverTime)
	if err != nil {
		return &domain.ErrStorage{Op: "watermark.set", Err: err}
	}
	return nil
}

// ApplyDelta commits the full pull response and the watermark advance
// atomically.
func (s *SQLite) ApplyDelta(bookID string, delta domain.SyncDelta) error {
	return s.execTx(func(tx *SQLite) error {
		if len(delta.Transactions) > 0 {
			if err := tx.UpsertTransactions(delta.Transactions); err != nil {
				return err
			}
		}
		if len(delta.Pockets) > 0 {
			if err := tx.UpsertPockets(delta.Pockets); err != nil {
				return err
			}
		}
		if len(delta.Categories) > 0 {
			if err := tx.UpsertCategories(delta.Categories); err != nil {
				return err
			}
		}
		return tx.SetWatermark(bookID, delta.ServerTime)
	})
}

func (s *SQLite) EnqueueChange(ch domain.PendingChange) error {
	var payload any
	if len(ch.Payload) > 0 {
		payload = string(ch.Payload)
	}
	_, err := s.db.Exec(`
		INSERT INTO pending_changes (id, entity_type, entity_id, book_id, action, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ch.ID, ch.EntityType, ch.EntityID, ch.BookID, string(ch.Action), payload, ch.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &domain.ErrStorage{Op: "outbox.enqueue", Err: err}
	}
	return nil
}

func (s *SQLite) ReassignChangeEntity(oldID, newID string) error {
	if _, err := s.db.Exec(`UPDATE pending_changes SET entity_id = ? WHERE entity_id = ?`, newID, oldID); err != nil {
		return &domain.ErrStorage{Op: "outbox.reassign", Err: err}
	}
	return nil
}

func (s *SQLite) DeleteChange(id string) error {
	if _, err := s.db.Exec(`DELETE FROM pending_changes WHERE id = ?`, id); err != nil {
		return &domain.ErrStorage{Op: "outbox.delete", Err: err}
	}
	return nil
}

// ChangesByBook returns the book's outbox in creation order. The seq column
// breaks ties between changes created within the same clock tick.
func (s *SQLite) ChangesByBook(bookID string) ([]domain.PendingChange, error) {
	rows, err := s.db.Query(`
		SELECT id, entity_type, entity_id, book_id, action, payload, created_at
		FROM pending_changes
		WHERE book_id = ?
		ORDER BY created_at, seq
	`, bookID)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "outbox.query", Err: err}
	}
	defer rows.Close()

	var out []domain.PendingChange
	for rows.Next() {
		var (
			ch        domain.PendingChange
			action    string
			payload   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&ch.ID, &ch.EntityType, &ch.EntityID, &ch.BookID, &action, &payload, &createdAt); err != nil {
			return nil, &domain.ErrStorage{Op: "outbox.scan", Err: err}
		}
		ch.Action = domain.ChangeAction(action)
		if payload.Valid {
			ch.Payload = []byte(payload.String)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ch.CreatedAt = t
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *SQLite) CountChanges() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, &domain.ErrStorage{Op: "outbox.count", Err: err}
	}
	return n, nil
}
