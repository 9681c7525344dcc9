package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/domain"
	"github.com/genzilabs/monger-client/internal/infra/api"
	"github.com/genzilabs/monger-client/internal/infra/credentials"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
	"github.com/genzilabs/monger-client/internal/infra/resilience"
	"github.com/genzilabs/monger-client/internal/service"
)

// fakeBackend is a stateful in-memory Monger server: bearer auth, versioned
// transactions with 409 on mismatch, and a per-book changes feed.
type fakeBackend struct {
	mu           sync.Mutex
	transactions map[string]domain.Transaction
	accessToken  string
	serverTime   time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		transactions: make(map[string]domain.Transaction),
		accessToken:  "access-1",
		serverTime:   time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(domain.AuthResponse{
			AccessToken:  f.accessToken,
			RefreshToken: "refresh-1",
			User:         domain.User{ID: "user-1", Email: "ana@example.com"},
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(f.requireAuth)

		r.Get("/books/{bookID}/sync", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			delta := domain.SyncDelta{ServerTime: f.serverTime.Format(time.RFC3339)}
			for _, tx := range f.transactions {
				delta.Transactions = append(delta.Transactions, tx)
			}
			json.NewEncoder(w).Encode(delta)
		})

		r.Post("/transactions", func(w http.ResponseWriter, req *http.Request) {
			var body domain.CreateTransactionRequest
			json.NewDecoder(req.Body).Decode(&body)

			f.mu.Lock()
			defer f.mu.Unlock()
			f.serverTime = f.serverTime.Add(time.Second)
			tx := domain.Transaction{
				ID:          "srv-" + uuid.NewString(),
				PocketID:    body.PocketID,
				Name:        body.Name,
				AmountCents: body.AmountCents,
				Type:        body.Type,
				Date:        body.Date,
				Version:     1,
				CreatedAt:   f.serverTime.Format(time.RFC3339),
				UpdatedAt:   f.serverTime.Format(time.RFC3339),
			}
			f.transactions[tx.ID] = tx
			json.NewEncoder(w).Encode(tx)
		})

		r.Patch("/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			var body domain.UpdateTransactionRequest
			json.NewDecoder(req.Body).Decode(&body)

			f.mu.Lock()
			defer f.mu.Unlock()
			tx, ok := f.transactions[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"error": "transaction not found"})
				return
			}
			if body.Version != tx.Version {
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]string{"error": "version mismatch", "code": "CONFLICT"})
				return
			}
			f.serverTime = f.serverTime.Add(time.Second)
			tx.Name = body.Name
			tx.AmountCents = body.AmountCents
			tx.Version++
			tx.UpdatedAt = f.serverTime.Format(time.RFC3339)
			f.transactions[id] = tx
			json.NewEncoder(w).Encode(tx)
		})

		r.Delete("/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			delete(f.transactions, chi.URLParam(req, "id"))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/pockets/{id}/transactions", func(w http.ResponseWriter, req *http.Request) {
			pocketID := chi.URLParam(req, "id")
			f.mu.Lock()
			defer f.mu.Unlock()
			page := domain.TransactionPage{}
			for _, tx := range f.transactions {
				if tx.PocketID == pocketID {
					page.Transactions = append(page.Transactions, tx)
				}
			}
			json.NewEncoder(w).Encode(page)
		})
	})

	return r
}

func (f *fakeBackend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+f.accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

type stack struct {
	backend *fakeBackend
	repo    localstore.Repository
	net     *netmon.Monitor
	metrics *observability.Metrics
	auth    *service.AuthService
	sync    *service.SyncService
	txs     *service.TransactionsService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	backend := newFakeBackend()
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	repo, err := localstore.Open(filepath.Join(t.TempDir(), "monger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	creds, err := credentials.Open(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("open credentials: %v", err)
	}

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	net := netmon.New(netmon.Online)

	client := api.NewClient(
		&http.Client{Timeout: 5 * time.Second},
		server.URL,
		creds,
		resilience.NewCircuitBreaker("integration"),
		8,
		logger,
		metrics,
	)

	syncSvc := service.NewSyncService(repo, client, net, time.Minute, logger, metrics)
	t.Cleanup(syncSvc.Close)
	txSvc := service.NewTransactionsService(repo, client, net, time.Minute, logger, metrics)
	t.Cleanup(txSvc.Close)
	authSvc := service.NewAuthService(client, creds, repo, syncSvc, logger, metrics)

	return &stack{
		backend: backend,
		repo:    repo,
		net:     net,
		metrics: metrics,
		auth:    authSvc,
		sync:    syncSvc,
		txs:     txSvc,
	}
}

func counterValue(t *testing.T, metrics *observability.Metrics, name, labelName, labelValue string) float64 {
	t.Helper()
	var families []*dto.MetricFamily
	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// TestIntegration_OfflineEditThenReconnect exercises the full loop: sign in,
// go offline, record a transaction, reconnect, drain the outbox, pull the
// authoritative state back.
func TestIntegration_OfflineEditThenReconnect(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	user, err := s.auth.Login(ctx, "ana@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", user)
	}

	s.net.SetState(netmon.Offline)

	created, err := s.txs.Create(ctx, "book-1", domain.CreateTransactionRequest{
		PocketID:    "p-1",
		Name:        "Coffee",
		AmountCents: 15000,
		Type:        domain.TransactionExpense,
		Date:        "2026-08-29",
	})
	if err != nil {
		t.Fatalf("offline create: %v", err)
	}
	if !strings.HasPrefix(created.ID, "temp-") {
		t.Fatalf("expected temporary id offline, got %q", created.ID)
	}
	if n, _ := s.sync.PendingCount(); n != 1 {
		t.Fatalf("expected 1 queued change, got %d", n)
	}

	s.net.SetState(netmon.Online)
	if err := s.sync.Sync(ctx, "book-1"); err != nil {
		t.Fatalf("sync after reconnect: %v", err)
	}

	if n, _ := s.sync.PendingCount(); n != 0 {
		t.Errorf("outbox not drained, %d left", n)
	}

	// The server's record replaced the temporary one in the local store.
	cached, err := s.repo.TransactionsByPocket("p-1")
	if err != nil {
		t.Fatalf("local query: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected exactly 1 cached transaction, got %d", len(cached))
	}
	if strings.HasPrefix(cached[0].ID, "temp-") {
		t.Error("temporary record survived the drain")
	}
	if cached[0].Name != "Coffee" || cached[0].AmountCents != 15000 {
		t.Errorf("authoritative record wrong: %+v", cached[0])
	}

	wm, _ := s.repo.Watermark("book-1")
	if wm == "" {
		t.Error("watermark not advanced after pull")
	}

	if got := counterValue(t, s.metrics, "monger_sync_pushes_total", "status", "ok"); got < 1 {
		t.Errorf("push counter not recorded, got %v", got)
	}
	if got := counterValue(t, s.metrics, "monger_sync_pulls_total", "status", "ok"); got < 1 {
		t.Errorf("pull counter not recorded, got %v", got)
	}
}

// TestIntegration_ConflictHaltsDrain seeds a queued update that is stale by
// the time the drain runs; the conflict must surface and the queue must stay
// intact.
func TestIntegration_ConflictHaltsDrain(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	if _, err := s.auth.Login(ctx, "ana@example.com", "hunter22"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Server-side record already at version 2 (edited from another device).
	s.backend.mu.Lock()
	s.backend.transactions["tx-1"] = domain.Transaction{
		ID: "tx-1", PocketID: "p-1", Name: "Rent", AmountCents: 900000, Version: 2,
	}
	s.backend.mu.Unlock()

	payload, _ := json.Marshal(domain.UpdateTransactionRequest{Name: "Rent (new)", AmountCents: 950000, Version: 1})
	err := s.repo.EnqueueChange(domain.PendingChange{
		ID:         uuid.NewString(),
		EntityType: domain.EntityTransaction,
		EntityID:   "tx-1",
		BookID:     "book-1",
		Action:     domain.ActionUpdate,
		Payload:    payload,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pushErr := s.sync.Push(ctx, "book-1")
	if pushErr == nil {
		t.Fatal("expected conflict from drain")
	}
	if !strings.Contains(pushErr.Error(), "tx-1") {
		t.Errorf("conflict must name the entity: %v", pushErr)
	}

	// The change stays queued for user-mediated resolution.
	if n, _ := s.sync.PendingCount(); n != 1 {
		t.Errorf("conflicting change must stay queued, outbox has %d", n)
	}
	// Server state untouched.
	s.backend.mu.Lock()
	if s.backend.transactions["tx-1"].Name != "Rent" {
		t.Error("conflicting update must not be applied server-side")
	}
	s.backend.mu.Unlock()

	if got := counterValue(t, s.metrics, "monger_conflicts_total", "entity", "transaction"); got != 1 {
		t.Errorf("conflict counter = %v, want 1", got)
	}
}

// TestIntegration_ExpiredTokenRefreshMidFlow rotates the server's accepted
// token; the gateway's refresh keeps domain calls working transparently.
func TestIntegration_ExpiredTokenRefreshMidFlow(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	if _, err := s.auth.Login(ctx, "ana@example.com", "hunter22"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Invalidate the issued access token; the login route hands out the new
	// one on refresh.
	s.backend.mu.Lock()
	s.backend.accessToken = "access-2"
	s.backend.mu.Unlock()

	// Without a refresh route the retry must fail as unauthorized, never
	// loop.
	err := s.sync.Pull(ctx, "book-1")
	if err == nil {
		t.Fatal("expected auth failure once token rotated without refresh support")
	}
	if !api.IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}
