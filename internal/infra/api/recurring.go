package api

import (
	"context"
	"net/http"

	"github.com/genzilabs/monger-client/internal/domain"
)

// Recurring schedules are user-scoped, not book-scoped: the server owns the
// firing clock, so the client only manages the schedule definitions.

func (c *Client) ListRecurring(ctx context.Context) ([]domain.RecurringTransaction, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/recurring-transactions", nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[[]domain.RecurringTransaction](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateRecurring(ctx context.Context, req domain.CreateRecurringRequest) (*domain.RecurringTransaction, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/recurring-transactions", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.RecurringTransaction](raw)
}

func (c *Client) UpdateRecurring(ctx context.Context, id string, req domain.UpdateRecurringRequest) (*domain.RecurringTransaction, error) {
	raw, err := c.Do(ctx, http.MethodPatch, "/recurring-transactions/"+id, req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.RecurringTransaction](raw)
}

func (c *Client) DeleteRecurring(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/recurring-transactions/"+id, nil, true)
	return err
}
