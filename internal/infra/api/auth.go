package api

import (
	"context"
	"net/http"

	"github.com/genzilabs/monger-client/internal/domain"
)

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/auth/login", req, false)
	if err != nil {
		return nil, err
	}
	return decode[domain.AuthResponse](raw)
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	raw, err := c.Do(ctx, http.MethodPost, "/auth/register", req, false)
	if err != nil {
		return nil, err
	}
	return decode[domain.AuthResponse](raw)
}

// Logout revokes the session server-side. Local credential teardown is the
// caller's job; this call is best-effort.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, true)
	return err
}

func (c *Client) GetProfile(ctx context.Context) (*domain.User, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/auth/me", nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.User](raw)
}
