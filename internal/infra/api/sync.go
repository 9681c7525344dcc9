package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/genzilabs/monger-client/internal/domain"
)

// GetChanges returns everything that changed in a book since the given
// watermark. An empty since asks for the full dataset. The response's
// server_time becomes the new watermark once applied.
func (c *Client) GetChanges(ctx context.Context, bookID, since string) (*domain.SyncDelta, error) {
	path := "/books/" + bookID + "/sync"
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}
	raw, err := c.Do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	return decode[domain.SyncDelta](raw)
}
