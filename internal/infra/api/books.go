package api

import (
	"context"
	"net/http"

	"github.com/genzilabs/monger-client/internal/domain"
)

type bookList struct {
	Books []domain.Book `json:"books"`
	Total int           `json:"total"`
}

type pocketList struct {
	Pockets []domain.Pocket `json:"pockets"`
	Total   int             `json:"total"`
}

func (c *Client) ListBooks(ctx context.Context) ([]domain.Book, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books", nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[bookList](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return out.Books, nil
}

func (c *Client) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books/"+id, nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Book](raw)
}

func (c *Client) CreateBook(ctx context.Context, req domain.CreateBookRequest) (*domain.Book, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/books", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Book](raw)
}

func (c *Client) UpdateBook(ctx context.Context, id string, req domain.UpdateBookRequest) (*domain.Book, error) {
	raw, err := c.Do(ctx, http.MethodPatch, "/books/"+id, req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Book](raw)
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/books/"+id, nil, true)
	return err
}

func (c *Client) ListPockets(ctx context.Context, bookID string) ([]domain.Pocket, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books/"+bookID+"/pockets", nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[pocketList](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return out.Pockets, nil
}

func (c *Client) CreatePocket(ctx context.Context, bookID string, req domain.CreatePocketRequest) (*domain.Pocket, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/books/"+bookID+"/pockets", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Pocket](raw)
}

func (c *Client) UpdatePocket(ctx context.Context, id string, req domain.UpdatePocketRequest) (*domain.Pocket, error) {
	raw, err := c.Do(ctx, http.MethodPatch, "/pockets/"+id, req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Pocket](raw)
}

func (c *Client) DeletePocket(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/pockets/"+id, nil, true)
	return err
}

// ReconcilePocket sets a pocket balance to an externally verified amount.
func (c *Client) ReconcilePocket(ctx context.Context, id string, req domain.ReconcileRequest) (*domain.Pocket, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/pockets/"+id+"/reconcile", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Pocket](raw)
}
