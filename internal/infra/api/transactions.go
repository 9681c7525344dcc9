package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/genzilabs/monger-client/internal/domain"
)

// ListOptions filter and paginate transaction listings.
type ListOptions struct {
	Limit      int
	Cursor     string
	Search     string
	Type       domain.TransactionType
	PocketID   string
	CategoryID string
	StartDate  string // YYYY-MM-DD
	EndDate    string // YYYY-MM-DD
}

func (o ListOptions) query() string {
	params := url.Values{}
	limit := o.Limit
	if limit <= 0 {
		limit = 20
	}
	params.Set("limit", strconv.Itoa(limit))
	if o.Cursor != "" {
		params.Set("cursor", o.Cursor)
	}
	if o.Search != "" {
		params.Set("search", o.Search)
	}
	if o.Type != "" {
		params.Set("type", string(o.Type))
	}
	if o.PocketID != "" {
		params.Set("pocket_id", o.PocketID)
	}
	if o.CategoryID != "" {
		params.Set("category_id", o.CategoryID)
	}
	if o.StartDate != "" {
		params.Set("start_date", o.StartDate)
	}
	if o.EndDate != "" {
		params.Set("end_date", o.EndDate)
	}
	return params.Encode()
}

func (c *Client) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/transactions", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Transaction](raw)
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/transactions/"+id, nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Transaction](raw)
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, req domain.UpdateTransactionRequest) (*domain.Transaction, error) {
	raw, err := c.Do(ctx, http.MethodPatch, "/transactions/"+id, req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Transaction](raw)
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/transactions/"+id, nil, true)
	return err
}

func (c *Client) CreateTransfer(ctx context.Context, req domain.CreateTransferRequest) error {
	_, err := c.Do(ctx, http.MethodPost, "/transfers", req, true)
	return err
}

func (c *Client) TransactionsByPocket(ctx context.Context, pocketID string, opts ListOptions) (*domain.TransactionPage, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/pockets/"+pocketID+"/transactions?"+opts.query(), nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.TransactionPage](raw)
}

func (c *Client) TransactionsByBook(ctx context.Context, bookID string, opts ListOptions) (*domain.TransactionPage, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books/"+bookID+"/transactions?"+opts.query(), nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.TransactionPage](raw)
}

func (c *Client) MonthlySummary(ctx context.Context, bookID string, month, year int) (*domain.MonthlySummary, error) {
	path := "/books/" + bookID + "/summary?month=" + strconv.Itoa(month) + "&year=" + strconv.Itoa(year)
	raw, err := c.Do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.MonthlySummary](raw)
}

func (c *Client) CategoryBreakdown(ctx context.Context, bookID, txType string, month, year int) ([]domain.CategoryBreakdown, error) {
	path := "/books/" + bookID + "/categories/breakdown?type=" + txType +
		"&month=" + strconv.Itoa(month) + "&year=" + strconv.Itoa(year)
	raw, err := c.Do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[[]domain.CategoryBreakdown](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}
