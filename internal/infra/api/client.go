// Package api is the single HTTP gateway to the Monger backend. All domain
// calls go through Client.Do, which owns bearer-token attachment,
// single-flight token refresh on 401, and uniform mapping of responses into
// the domain error taxonomy. HTTP-level failures come back as typed errors,
// never panics; a total transport failure is converted to *domain.ErrNetwork.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/credentials"
	"github.com/genzilabs/monger-client/internal/infra/observability"
	"github.com/genzilabs/monger-client/internal/infra/resilience"
)

// Client wraps HTTP calls to the backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      *credentials.Store
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	refresh    singleflight.Group
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient creates the gateway. The circuit breaker only observes
// transport failures; HTTP error statuses are server answers and must not
// trip it.
func NewClient(httpClient *http.Client, baseURL string, creds *credentials.Store, cb *gobreaker.CircuitBreaker, maxConcurrency int, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		creds:      creds,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(maxConcurrency),
		logger:     logger,
		metrics:    metrics,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// errEnvelope is the backend's uniform error body.
type errEnvelope struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Do executes one request. A nil body sends no payload. When requireAuth is
// set, the current access token is attached; a 401 triggers at most one
// single-flight refresh followed by exactly one retry.
func (c *Client) Do(ctx context.Context, method, path string, body any, requireAuth bool) (json.RawMessage, error) {
	start := time.Now()
	payload, err := marshalBody(body)
	if err != nil {
		return nil, &domain.ErrValidation{Message: fmt.Sprintf("encode request body: %v", err)}
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrNetwork{Op: method + " " + path, Err: err}
	}
	defer c.bulkhead.Release()

	if requireAuth && tokenExpired(c.creds.AccessToken()) && c.creds.RefreshToken() != "" {
		// Proactive refresh: the token is known-stale, skip the doomed
		// first attempt.
		if err := c.refreshTokens(ctx); err != nil {
			c.metrics.ObserveRequest(method, "auth_error", time.Since(start))
			return nil, err
		}
	}

	status, respBody, err := c.send(ctx, method, path, payload, requireAuth)
	if err != nil {
		c.metrics.ObserveRequest(method, "network_error", time.Since(start))
		return nil, err
	}

	if status == http.StatusUnauthorized && requireAuth {
		if err := c.refreshTokens(ctx); err != nil {
			c.metrics.ObserveRequest(method, "auth_error", time.Since(start))
			return nil, err
		}
		status, respBody, err = c.send(ctx, method, path, payload, requireAuth)
		if err != nil {
			c.metrics.ObserveRequest(method, "network_error", time.Since(start))
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.metrics.ObserveRequest(method, "auth_error", time.Since(start))
			return nil, &domain.ErrUnauthorized{}
		}
	}

	if status < 200 || status >= 300 {
		c.metrics.ObserveRequest(method, "error", time.Since(start))
		return nil, errorFromResponse(status, respBody)
	}

	c.metrics.ObserveRequest(method, "ok", time.Since(start))

	// 204 / empty body is a successful empty result, not an error.
	if status == http.StatusNoContent || len(respBody) == 0 {
		return nil, nil
	}
	return respBody, nil
}

// send executes one HTTP round trip through the circuit breaker.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, requireAuth bool) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, &domain.ErrNetwork{Op: method + " " + path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if token := c.creds.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	result, err := c.cb.Execute(func() (any, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		c.logger.Debug("api: transport failure",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return 0, nil, &domain.ErrNetwork{Op: method + " " + path, Err: err}
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.ErrNetwork{Op: method + " " + path, Err: err}
	}
	return resp.StatusCode, respBody, nil
}

// refreshTokens performs the token refresh. Concurrent callers share one
// in-flight refresh: at most one POST /auth/refresh no matter how many
// requests hit 401 simultaneously. Unrecoverable failure clears local
// credentials.
func (c *Client) refreshTokens(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		refreshToken := c.creds.RefreshToken()
		if refreshToken == "" {
			c.metrics.RecordTokenRefresh("failed")
			_ = c.creds.ClearAll()
			return nil, &domain.ErrUnauthorized{Message: "no refresh token"}
		}

		payload, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
		status, body, err := c.send(ctx, http.MethodPost, "/auth/refresh", payload, false)
		if err != nil {
			// Transport failure: the session may still be valid, keep
			// credentials for the next attempt.
			c.metrics.RecordTokenRefresh("failed")
			return nil, err
		}
		if status < 200 || status >= 300 {
			c.metrics.RecordTokenRefresh("failed")
			_ = c.creds.ClearAll()
			c.logger.Warn("api: token refresh rejected", zap.Int("status", status))
			return nil, &domain.ErrUnauthorized{Message: "token refresh rejected"}
		}

		var auth domain.AuthResponse
		if err := json.Unmarshal(body, &auth); err != nil {
			c.metrics.RecordTokenRefresh("failed")
			_ = c.creds.ClearAll()
			return nil, &domain.ErrUnauthorized{Message: "malformed refresh response"}
		}

		if err := c.creds.SetTokens(auth.AccessToken, auth.RefreshToken); err != nil {
			c.logger.Warn("api: persisting refreshed tokens failed", zap.Error(err))
		}
		if auth.User.ID != "" {
			_ = c.creds.SetUser(auth.User)
		}
		c.metrics.RecordTokenRefresh("ok")
		return nil, nil
	})
	return err
}

func errorFromResponse(status int, body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == "" {
		env.Error = http.StatusText(status)
		env.Code = fmt.Sprintf("HTTP_%d", status)
	}

	switch {
	case status == http.StatusConflict || env.Code == "CONFLICT" || env.Code == "VERSION_MISMATCH":
		return &domain.ErrConflict{Message: env.Error}
	case status == http.StatusUnauthorized:
		return &domain.ErrUnauthorized{Message: env.Error}
	case status == http.StatusNotFound:
		return &domain.ErrNotFound{Resource: "resource", ID: env.Error}
	case status >= 400 && status < 500:
		return &domain.ErrValidation{Message: env.Error, Fields: env.Details}
	default:
		return &domain.ErrAPI{Status: status, Code: env.Code, Message: env.Error}
	}
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(body)
}

// tokenExpired reports whether the JWT's exp claim has passed (with a small
// leeway). The client never verifies signatures; only the server can.
func tokenExpired(token string) bool {
	if token == "" {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false // opaque token, let the server decide
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now().Add(30 * time.Second))
}

// decode unmarshals a gateway payload into out, tolerating empty results.
func decode[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.ErrAPI{Status: 0, Code: "DECODE", Message: err.Error()}
	}
	return &out, nil
}

// IsAuthFailure reports whether err means the session is gone for good.
func IsAuthFailure(err error) bool {
	var ua *domain.ErrUnauthorized
	return errors.As(err, &ua)
}
