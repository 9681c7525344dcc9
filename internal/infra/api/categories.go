package api

import (
	"context"
	"net/http"

	"github.com/genzilabs/monger-client/internal/domain"
)

func (c *Client) ListCategories(ctx context.Context, bookID string) ([]domain.Category, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books/"+bookID+"/categories", nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[[]domain.Category](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateCategory(ctx context.Context, bookID string, req domain.CreateCategoryRequest) (*domain.Category, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/books/"+bookID+"/categories", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Category](raw)
}

func (c *Client) UpdateCategory(ctx context.Context, id string, req domain.UpdateCategoryRequest) (*domain.Category, error) {
	raw, err := c.Do(ctx, http.MethodPatch, "/categories/"+id, req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Category](raw)
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/categories/"+id, nil, true)
	return err
}

func (c *Client) CreateSubcategory(ctx context.Context, categoryID string, req domain.CreateSubcategoryRequest) (*domain.Subcategory, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/categories/"+categoryID+"/subcategories", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Subcategory](raw)
}

func (c *Client) DeleteSubcategory(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/subcategories/"+id, nil, true)
	return err
}
