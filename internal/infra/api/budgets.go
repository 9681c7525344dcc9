package api

import (
	"context"
	"net/http"

	"github.com/genzilabs/monger-client/internal/domain"
)

func (c *Client) ListBudgets(ctx context.Context, bookID string) ([]domain.Budget, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books/"+bookID+"/budgets", nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[[]domain.Budget](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateBudget(ctx context.Context, bookID string, req domain.CreateBudgetRequest) (*domain.Budget, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/books/"+bookID+"/budgets", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Budget](raw)
}

func (c *Client) UpdateBudget(ctx context.Context, id string, amountCents int64) (*domain.Budget, error) {
	raw, err := c.Do(ctx, http.MethodPatch, "/budgets/"+id, map[string]int64{"amount_cents": amountCents}, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Budget](raw)
}

func (c *Client) DeleteBudget(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/budgets/"+id, nil, true)
	return err
}

func (c *Client) ListGoals(ctx context.Context, bookID string) ([]domain.Goal, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/books/"+bookID+"/goals", nil, true)
	if err != nil {
		return nil, err
	}
	out, err := decode[[]domain.Goal](raw)
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) CreateGoal(ctx context.Context, bookID string, req domain.CreateGoalRequest) (*domain.Goal, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/books/"+bookID+"/goals", req, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Goal](raw)
}

// ContributeToGoal moves money into a goal and returns the updated goal.
func (c *Client) ContributeToGoal(ctx context.Context, id string, amountCents int64) (*domain.Goal, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/goals/"+id+"/contributions", map[string]int64{"amount_cents": amountCents}, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.Goal](raw)
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/goals/"+id, nil, true)
	return err
}
