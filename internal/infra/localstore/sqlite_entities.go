package localstore

import (
	"database/sql"
	"encoding/json"

	"github.com/genzilabs/monger-client/internal/domain"
)

// Entity rows store the full record as JSON alongside the columns the cache
// indexes on, mirroring the keyed-collection schema the server API implies.

func (s *SQLite) UpsertTransactions(txs []domain.Transaction) error {
	for _, t := range txs {
		data, err := json.Marshal(t)
		if err != nil {
			return &domain.ErrStorage{Op: "transactions.upsert", Err: err}
		}
		_, err = s.db.Exec(`
			INSERT INTO transactions (id, pocket_id, updated_at, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				pocket_id = excluded.pocket_id,
				updated_at = excluded.updated_at,
				data = excluded.data
		`, t.ID, t.PocketID, t.UpdatedAt, string(data))
		if err != nil {
			return &domain.ErrStorage{Op: "transactions.upsert", Err: err}
		}
	}
	return nil
}

func (s *SQLite) TransactionsByPocket(pocketID string) ([]domain.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT data FROM transactions
		WHERE pocket_id = ?
		ORDER BY updated_at DESC, id
	`, pocketID)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "transactions.query", Err: err}
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &domain.ErrStorage{Op: "transactions.scan", Err: err}
		}
		var t domain.Transaction
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, &domain.ErrStorage{Op: "transactions.decode", Err: err}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) GetTransaction(id string) (*domain.Transaction, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM transactions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if err != nil {
		return nil, &domain.ErrStorage{Op: "transactions.get", Err: err}
	}

	var t domain.Transaction
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, &domain.ErrStorage{Op: "transactions.decode", Err: err}
	}
	return &t, nil
}

func (s *SQLite) DeleteTransaction(id string) error {
	if _, err := s.db.Exec(`DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return &domain.ErrStorage{Op: "transactions.delete", Err: err}
	}
	return nil
}

func (s *SQLite) UpsertPockets(ps []domain.Pocket) error {
	for _, p := range ps {
		data, err := json.Marshal(p)
		if err != nil {
			return &domain.ErrStorage{Op: "pockets.upsert", Err: err}
		}
		_, err = s.db.Exec(`
			INSERT INTO pockets (id, book_id, updated_at, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				updated_at = excluded.updated_at,
				data = excluded.data
		`, p.ID, p.BookID, p.UpdatedAt, string(data))
		if err != nil {
			return &domain.ErrStorage{Op: "pockets.upsert", Err: err}
		}
	}
	return nil
}

func (s *SQLite) PocketsByBook(bookID string) ([]domain.Pocket, error) {
	rows, err := s.db.Query(`
		SELECT data FROM pockets WHERE book_id = ? ORDER BY id
	`, bookID)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "pockets.query", Err: err}
	}
	defer rows.Close()

	var out []domain.Pocket
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &domain.ErrStorage{Op: "pockets.scan", Err: err}
		}
		var p domain.Pocket
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, &domain.ErrStorage{Op: "pockets.decode", Err: err}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) DeletePocket(id string) error {
	if _, err := s.db.Exec(`DELETE FROM pockets WHERE id = ?`, id); err != nil {
		return &domain.ErrStorage{Op: "pockets.delete", Err: err}
	}
	return nil
}

func (s *SQLite) UpsertCategories(cs []domain.Category) error {
	for _, c := range cs {
		data, err := json.Marshal(c)
		if err != nil {
			return &domain.ErrStorage{Op: "categories.upsert", Err: err}
		}
		_, err = s.db.Exec(`
			INSERT INTO categories (id, book_id, updated_at, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				updated_at = excluded.updated_at,
				data = excluded.data
		`, c.ID, c.BookID, c.UpdatedAt, string(data))
		if err != nil {
			return &domain.ErrStorage{Op: "categories.upsert", Err: err}
		}
	}
	return nil
}

func (s *SQLite) CategoriesByBook(bookID string) ([]domain.Category, error) {
	rows, err := s.db.Query(`
		SELECT data FROM categories WHERE book_id = ? ORDER BY id
	`, bookID)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "categories.query", Err: err}
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &domain.ErrStorage{Op: "categories.scan", Err: err}
		}
		var c domain.Category
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, &domain.ErrStorage{Op: "categories.decode", Err: err}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteCategory(id string) error {
	if _, err := s.db.Exec(`DELETE FROM categories WHERE id = ?`, id); err != nil {
		return &domain.ErrStorage{Op: "categories.delete", Err: err}
	}
	return nil
}

func (s *SQLite) UpsertBook(b domain.Book) error {
	data, err := json.Marshal(b)
	if err != nil {
		return &domain.ErrStorage{Op: "books.upsert", Err: err}
	}
	_, err = s.db.Exec(`
		INSERT INTO books (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, b.ID, string(data))
	if err != nil {
		return &domain.ErrStorage{Op: "books.upsert", Err: err}
	}
	return nil
}

func (s *SQLite) GetBook(id string) (*domain.Book, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM books WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "book", ID: id}
	}
	if err != nil {
		return nil, &domain.ErrStorage{Op: "books.get", Err: err}
	}

	var b domain.Book
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, &domain.ErrStorage{Op: "books.decode", Err: err}
	}
	return &b, nil
}

func (s *SQLite) Books() ([]domain.Book, error) {
	rows, err := s.db.Query(`SELECT data FROM books ORDER BY id`)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "books.query", Err: err}
	}
	defer rows.Close()

	var out []domain.Book
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &domain.ErrStorage{Op: "books.scan", Err: err}
		}
		var b domain.Book
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, &domain.ErrStorage{Op: "books.decode", Err: err}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
