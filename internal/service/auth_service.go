package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/credentials"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/observability"
)

var authTracer = otel.Tracer("service/auth")

type authBackend interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*domain.User, error)
}

// AuthService owns the session lifecycle: sign in, sign up, sign out, and
// restoring a session from persisted credentials across restarts. Logout
// tears down all local state so no background work references a dead
// session.
type AuthService struct {
	backend authBackend
	creds   *credentials.Store
	repo    localstore.Repository
	sync    *SyncService
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewAuthService(backend authBackend, creds *credentials.Store, repo localstore.Repository, syncSvc *SyncService, logger *zap.Logger, metrics *observability.Metrics) *AuthService {
	return &AuthService{
		backend: backend,
		creds:   creds,
		repo:    repo,
		sync:    syncSvc,
		logger:  logger,
		metrics: metrics,
	}
}

// Login authenticates and persists the session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "auth.login")
	defer span.End()

	resp, err := s.backend.Login(ctx, domain.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty login response"}
	}
	return s.persistSession(resp)
}

// Register creates an account and persists the resulting session.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "auth.register")
	defer span.End()

	resp, err := s.backend.Register(ctx, domain.RegisterRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &domain.ErrAPI{Code: "EMPTY", Message: "empty register response"}
	}
	return s.persistSession(resp)
}

// Logout revokes the session server-side (best effort), stops all background
// sync, and wipes credentials and the local cache.
func (s *AuthService) Logout(ctx context.Context) error {
	ctx, span := authTracer.Start(ctx, "auth.logout")
	defer span.End()

	if err := s.backend.Logout(ctx); err != nil {
		s.logger.Warn("auth: server-side logout failed", zap.Error(err))
	}

	if s.sync != nil {
		s.sync.StopAllAutoSync()
	}
	if err := s.creds.ClearAll(); err != nil {
		return err
	}
	if err := s.repo.Reset(); err != nil {
		return err
	}
	s.logger.Info("auth: session cleared")
	return nil
}

// HasSession reports whether persisted credentials exist. The access token
// may be expired; the gateway refreshes it on first use.
func (s *AuthService) HasSession() bool {
	return s.creds.RefreshToken() != "" || s.creds.AccessToken() != ""
}

// Restore returns the cached user profile for a persisted session, or an
// auth error if none exists.
func (s *AuthService) Restore() (*domain.User, error) {
	if !s.HasSession() {
		return nil, &domain.ErrUnauthorized{Message: "no persisted session"}
	}
	var user domain.User
	if !s.creds.User(&user) {
		return nil, nil // session exists, profile will load on demand
	}
	return &user, nil
}

// Profile fetches the authoritative profile and refreshes the cached copy.
func (s *AuthService) Profile(ctx context.Context) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "auth.profile")
	defer span.End()

	user, err := s.backend.GetProfile(ctx)
	if err != nil {
		var ua *domain.ErrUnauthorized
		if errors.As(err, &ua) {
			// The gateway already cleared credentials; fall back to nothing.
			return nil, err
		}
		return nil, err
	}
	if user != nil {
		if err := s.creds.SetUser(user); err != nil {
			s.logger.Warn("auth: caching profile failed", zap.Error(err))
		}
	}
	return user, nil
}

func (s *AuthService) persistSession(resp *domain.AuthResponse) (*domain.User, error) {
	if err := s.creds.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, err
	}
	if err := s.creds.SetUser(resp.User); err != nil {
		s.logger.Warn("auth: caching profile failed", zap.Error(err))
	}
	s.logger.Info("auth: session established", zap.String("user_id", resp.User.ID))
	user := resp.User
	return &user, nil
}
