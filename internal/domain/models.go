// Package domain holds the entity model shared by the local store, the HTTP
// gateway, and the domain stores. All records are cached mirrors of server
// state; the server is the single source of truth.
package domain

import (
	"encoding/json"
	"time"
)

// TransactionType discriminates the three kinds of transaction rows.
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

// Transaction is a single money movement inside a pocket. Transfers are a
// linked pair of rows sharing TransferID, with IsSource marking the debit
// side.
type Transaction struct {
	ID                   string          `json:"id"`
	PocketID             string          `json:"pocket_id"`
	Name                 string          `json:"name"`
	AmountCents          int64           `json:"amount_cents"`
	Type                 TransactionType `json:"type"`
	Date                 string          `json:"date"`
	Description          string          `json:"description,omitempty"`
	CategoryID           string          `json:"category_id,omitempty"`
	SubcategoryID        string          `json:"subcategory_id,omitempty"`
	TransferID           string          `json:"transfer_id,omitempty"`
	RelatedTransactionID string          `json:"related_transaction_id,omitempty"`
	RelatedPocketID      string          `json:"related_pocket_id,omitempty"`
	IsSource             bool            `json:"is_source,omitempty"`
	FeeCents             int64           `json:"fee_cents,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            string          `json:"created_at"`
	UpdatedAt            string          `json:"updated_at"`
}

// PocketRole is the role the current user holds on a pocket.
type PocketRole string

const (
	RoleOwner  PocketRole = "owner"
	RoleEditor PocketRole = "editor"
	RoleViewer PocketRole = "viewer"
)

// Pocket is an account/wallet within a book holding a running balance.
type Pocket struct {
	ID           string     `json:"id"`
	BookID       string     `json:"book_id"`
	Name         string     `json:"name"`
	TypeSlug     string     `json:"type_slug,omitempty"`
	IconSlug     string     `json:"icon_slug,omitempty"`
	Color        string     `json:"color,omitempty"`
	BalanceCents int64      `json:"balance_cents"`
	Currency     string     `json:"currency,omitempty"`
	IsFrozen     bool       `json:"is_frozen"`
	Role         PocketRole `json:"role"`
	Version      int64      `json:"version"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// Book is a ledger grouping pockets, categories, and transactions for one or
// more collaborating users.
type Book struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	IconSlug      string `json:"icon_slug,omitempty"`
	BaseCurrency  string `json:"base_currency"`
	MonthStartDay int    `json:"month_start_day"`
	MemberCount   int    `json:"member_count,omitempty"`
	Version       int64  `json:"version"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Category classifies transactions within a book.
type Category struct {
	ID            string        `json:"id"`
	BookID        string        `json:"book_id"`
	Name          string        `json:"name"`
	Icon          string        `json:"icon,omitempty"`
	Type          string        `json:"type"`
	IsDefault     bool          `json:"is_default"`
	Version       int64         `json:"version"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

// Subcategory is a second-level classification under a category.
type Subcategory struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	CreatedAt  string `json:"created_at"`
}

// Budget caps spending for a category over a month.
type Budget struct {
	ID          string `json:"id"`
	BookID      string `json:"book_id"`
	CategoryID  string `json:"category_id"`
	AmountCents int64  `json:"amount_cents"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	SpentCents  int64  `json:"spent_cents,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Goal is a savings target attached to a book.
type Goal struct {
	ID           string `json:"id"`
	BookID       string `json:"book_id"`
	Name         string `json:"name"`
	TargetCents  int64  `json:"target_cents"`
	CurrentCents int64  `json:"current_cents"`
	Deadline     string `json:"deadline,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// RecurringFrequency is how often a recurring transaction fires.
type RecurringFrequency string

const (
	FrequencyDaily   RecurringFrequency = "daily"
	FrequencyWeekly  RecurringFrequency = "weekly"
	FrequencyMonthly RecurringFrequency = "monthly"
	FrequencyYearly  RecurringFrequency = "yearly"
)

// RecurringTransaction is a server-side schedule that materializes real
// transactions; NextDate is when the server will fire it next.
type RecurringTransaction struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	PocketID      string             `json:"pocket_id"`
	Name          string             `json:"name"`
	AmountCents   int64              `json:"amount_cents"`
	Type          TransactionType    `json:"type"`
	Frequency     RecurringFrequency `json:"frequency"`
	StartDate     string             `json:"start_date"`
	NextDate      string             `json:"next_date"`
	Description   string             `json:"description,omitempty"`
	CategoryID    string             `json:"category_id,omitempty"`
	SubcategoryID string             `json:"subcategory_id,omitempty"`
	ToPocketID    string             `json:"to_pocket_id,omitempty"`
	CreatedAt     string             `json:"created_at"`
	UpdatedAt     string             `json:"updated_at"`
}

// User is the cached profile of the signed-in user.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ChangeAction is the kind of mutation a pending change replays.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Entity type tags used by pending changes and the cache layer.
const (
	EntityTransaction = "transaction"
	EntityPocket      = "pocket"
	EntityCategory    = "category"
	EntityBook        = "book"
)

// PendingChange is an outbox entry: a locally durable mutation the server
// has not yet acknowledged. Changes for the same book replay strictly in
// creation order.
type PendingChange struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	BookID     string          `json:"book_id"`
	Action     ChangeAction    `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SyncDelta is the server's "changes since watermark" response for a book.
// ServerTime becomes the new watermark once the delta is applied.
type SyncDelta struct {
	Transactions []Transaction `json:"transactions"`
	Pockets      []Pocket      `json:"pockets"`
	Categories   []Category    `json:"categories"`
	ServerTime   string        `json:"server_time"`
}

// --- Request payloads ---

type CreateTransactionRequest struct {
	PocketID      string          `json:"pocket_id"`
	Name          string          `json:"name"`
	AmountCents   int64           `json:"amount_cents"`
	Type          TransactionType `json:"type"`
	Date          string          `json:"date,omitempty"`
	Description   string          `json:"description,omitempty"`
	CategoryID    string          `json:"category_id,omitempty"`
	SubcategoryID string          `json:"subcategory_id,omitempty"`
}

// UpdateTransactionRequest carries Version: the server rejects the write
// with a conflict if the version no longer matches.
type UpdateTransactionRequest struct {
	Name          string `json:"name"`
	AmountCents   int64  `json:"amount_cents"`
	Date          string `json:"date,omitempty"`
	Description   string `json:"description,omitempty"`
	CategoryID    string `json:"category_id,omitempty"`
	SubcategoryID string `json:"subcategory_id,omitempty"`
	Version       int64  `json:"version"`
}

type CreateTransferRequest struct {
	FromPocketID string `json:"from_pocket_id"`
	ToPocketID   string `json:"to_pocket_id"`
	Name         string `json:"name"`
	AmountCents  int64  `json:"amount_cents"`
	FeeCents     int64  `json:"fee_cents,omitempty"`
	Date         string `json:"date"`
	Description  string `json:"description,omitempty"`
}

type CreateBookRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IconSlug     string `json:"icon_slug,omitempty"`
	BaseCurrency string `json:"base_currency,omitempty"`
}

type UpdateBookRequest struct {
	Name          string `json:"name,omitempty"`
	Description   string `json:"description,omitempty"`
	IconSlug      string `json:"icon_slug,omitempty"`
	BaseCurrency  string `json:"base_currency,omitempty"`
	MonthStartDay int    `json:"month_start_day,omitempty"`
	Version       int64  `json:"version"`
}

type CreatePocketRequest struct {
	Name         string `json:"name"`
	TypeSlug     string `json:"type_slug,omitempty"`
	IconSlug     string `json:"icon_slug,omitempty"`
	Color        string `json:"color,omitempty"`
	BalanceCents int64  `json:"balance,omitempty"`
}

type UpdatePocketRequest struct {
	Name     string `json:"name,omitempty"`
	TypeSlug string `json:"type_slug,omitempty"`
	IconSlug string `json:"icon_slug,omitempty"`
	Color    string `json:"color,omitempty"`
	IsFrozen *bool  `json:"is_frozen,omitempty"`
	Version  int64  `json:"version"`
}

// ReconcileRequest sets a pocket balance to an externally verified amount.
type ReconcileRequest struct {
	NewBalanceCents int64 `json:"new_balance"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Type string `json:"type"`
}

type UpdateCategoryRequest struct {
	Name    string `json:"name,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Version int64  `json:"version"`
}

type CreateSubcategoryRequest struct {
	Name string `json:"name"`
}

type CreateBudgetRequest struct {
	CategoryID  string `json:"category_id"`
	AmountCents int64  `json:"amount_cents"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
}

type CreateRecurringRequest struct {
	PocketID      string             `json:"pocket_id"`
	Name          string             `json:"name"`
	AmountCents   int64              `json:"amount_cents"`
	Type          TransactionType    `json:"type"`
	Frequency     RecurringFrequency `json:"frequency"`
	StartDate     string             `json:"start_date"`
	Description   string             `json:"description,omitempty"`
	CategoryID    string             `json:"category_id,omitempty"`
	SubcategoryID string             `json:"subcategory_id,omitempty"`
	ToPocketID    string             `json:"to_pocket_id,omitempty"`
}

type UpdateRecurringRequest struct {
	Name          string             `json:"name,omitempty"`
	AmountCents   int64              `json:"amount_cents,omitempty"`
	Type          TransactionType    `json:"type,omitempty"`
	Frequency     RecurringFrequency `json:"frequency,omitempty"`
	StartDate     string             `json:"start_date,omitempty"`
	Description   string             `json:"description,omitempty"`
	CategoryID    string             `json:"category_id,omitempty"`
	SubcategoryID string             `json:"subcategory_id,omitempty"`
	ToPocketID    string             `json:"to_pocket_id,omitempty"`
}

type CreateGoalRequest struct {
	Name        string `json:"name"`
	TargetCents int64  `json:"target_cents"`
	Deadline    string `json:"deadline,omitempty"`
}

// --- Auth payloads ---

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// --- Read models ---

// TransactionPage is a cursor-paginated transaction listing.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
	HasMore      bool          `json:"has_more"`
}

type MonthlySummary struct {
	TotalIncomeCents  int64 `json:"total_income"`
	TotalExpenseCents int64 `json:"total_expense"`
	Month             int   `json:"month"`
	Year              int   `json:"year"`
}

type CategoryBreakdown struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	AmountCents  int64   `json:"amount"`
	Percentage   float64 `json:"percentage"`
}
