package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/handler"
	"github.com/boddenberg/bankcards-api/internal/infra/cache"
	"github.com/boddenberg/bankcards-api/internal/infra/memory"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Operational endpoints ---

func newBareRouter() http.Handler {
	return handler.NewRouter(handler.Services{}, observability.NewMetrics(), handler.Options{}, zap.NewNop())
}

func TestHealthz(t *testing.T) {
	router := newBareRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_UnhealthyDependency(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), handler.Options{
		HealthChecks: []handler.HealthCheck{
			{Name: "postgres", Ping: func(context.Context) error { return errors.New("connection refused") }},
		},
	}, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Services, 2)
	assert.Equal(t, "unhealthy", body.Services[1].Status)
}

func TestReadyz(t *testing.T) {
	router := newBareRouter()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newBareRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestPing(t *testing.T) {
	rec := httptest.NewRecorder()
	newBareRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// --- API fixture ---

type api struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T, opts handler.Options) *api {
	t.Helper()
	store := memory.NewStore()
	metrics := observability.NewMetrics()
	principals := cache.New[domain.Principal](time.Minute)
	t.Cleanup(principals.Close)
	logger := zap.NewNop()

	authSvc := service.NewAuthService(store, principals, "handler-test-secret", time.Hour, metrics, logger)
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), "admin", "admin@example.com", "admin123"))

	svc := handler.Services{
		Cards: service.NewCardService(store, metrics, logger),
		Users: service.NewUserService(store, principals, logger),
		Auth:  authSvc,
	}
	return &api{t: t, router: handler.NewRouter(svc, metrics, opts, logger)}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) token(path string, body any, want int) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, path, "", body)
	require.Equal(a.t, want, rec.Code, rec.Body.String())
	var tok domain.TokenResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &tok))
	return tok.Token
}

func (a *api) signUp(name string) string {
	return a.token("/auth/sign-up", map[string]string{"username": name, "email": name + "@example.com", "password": "secret123"}, http.StatusCreated)
}

func (a *api) adminToken() string {
	return a.token("/auth/sign-in", map[string]string{"username": "admin", "password": "admin123"}, http.StatusOK)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *api) userID(admin, name string) string {
	a.t.Helper()
	rec := a.do(http.MethodGet, "/api/admin/users", admin, nil)
	require.Equal(a.t, http.StatusOK, rec.Code)
	for _, u := range decode[[]domain.User](a.t, rec) {
		if u.Name == name {
			return u.ID.String()
		}
	}
	a.t.Fatalf("user %s not found", name)
	return ""
}

func (a *api) issueCard(admin, userID, number string, balance int64, status string) domain.Card {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/admin/cards/"+userID, admin, map[string]any{
		"cardNumber": number,
		"status":     status,
		"balance":    balance,
		"expiryDate": "2030-12",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Card](a.t, rec)
}

// --- Auth & access control ---

func TestAPI_RequiresToken(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec := a.do(http.MethodGet, "/api/cards", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/cards", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAPI_UserCannotReachAdmin(t *testing.T) {
	a := newAPI(t, handler.Options{})
	user := a.signUp("alice")

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/admin/cards", user, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/admin/users", user, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/admin/cards", a.adminToken(), nil).Code)
}

func TestAPI_SignInWrongPassword(t *testing.T) {
	a := newAPI(t, handler.Options{})
	a.signUp("alice")

	rec := a.do(http.MethodPost, "/auth/sign-in", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_SignUpValidation(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec := a.do(http.MethodPost, "/auth/sign-up", "", map[string]string{"username": "al", "email": "not-an-email", "password": "secret123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[struct {
		Error   string              `json:"error"`
		Details []domain.FieldError `json:"details"`
	}](t, rec)
	assert.Equal(t, "validation failed", body.Error)
	fields := map[string]bool{}
	for _, d := range body.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["username"])
	assert.True(t, fields["email"])
}

func newAuthLimiter(t *testing.T) *handler.RateLimiter {
	t.Helper()
	rl := handler.NewRateLimiter(0.001, 1, time.Minute)
	t.Cleanup(rl.Close)
	return rl
}

func (a *api) signInFrom(forwardedFor string) int {
	a.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in",
		strings.NewReader(`{"username":"admin","password":"admin123"}`))
	req.Header.Set("Content-Type", "application/json")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec.Code
}

func TestAPI_AuthRateLimited(t *testing.T) {
	a := newAPI(t, handler.Options{AuthRateLimiter: newAuthLimiter(t)})

	assert.Equal(t, http.StatusOK, a.signInFrom(""))
	assert.Equal(t, http.StatusTooManyRequests, a.signInFrom(""))
}

func TestAPI_AuthRateLimitIgnoresForwardedHeaders(t *testing.T) {
	rl := newAuthLimiter(t)
	a := newAPI(t, handler.Options{AuthRateLimiter: rl})

	assert.Equal(t, http.StatusOK, a.signInFrom("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, a.signInFrom("10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, a.signInFrom("10.0.0.3"))
	assert.Equal(t, 1, rl.Len())
}

func TestAPI_AuthRateLimitTrustedProxy(t *testing.T) {
	rl := newAuthLimiter(t)
	a := newAPI(t, handler.Options{AuthRateLimiter: rl, TrustProxyHeaders: true})

	assert.Equal(t, http.StatusOK, a.signInFrom("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, a.signInFrom("10.0.0.1"))
	assert.Equal(t, http.StatusOK, a.signInFrom("10.0.0.2"))
	assert.Equal(t, 2, rl.Len())
}

// --- Cards ---

func TestAPI_TransferFlow(t *testing.T) {
	a := newAPI(t, handler.Options{})
	admin := a.adminToken()
	user := a.signUp("alice")
	aliceID := a.userID(admin, "alice")

	cardA := a.issueCard(admin, aliceID, "4000000000000001", 500, "ACTIVE")
	cardB := a.issueCard(admin, aliceID, "4000000000000002", 200, "ACTIVE")

	rec := a.do(http.MethodPost, "/api/cards", user, map[string]any{
		"cardNumberFrom": cardA.CardNumber,
		"cardNumberTo":   cardB.CardNumber,
		"amount":         100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tr := decode[domain.Transfer](t, rec)
	assert.Equal(t, "100", tr.Amount.String())

	rec = a.do(http.MethodGet, "/api/cards/"+cardA.ID.String()+"/balance", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "400", decode[domain.BalanceResponse](t, rec).Balance)

	rec = a.do(http.MethodPost, "/api/cards", user, map[string]any{
		"cardNumberFrom": cardA.CardNumber,
		"cardNumberTo":   cardB.CardNumber,
		"amount":         1000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/cards", user, map[string]any{
		"cardNumberFrom": cardA.CardNumber,
		"cardNumberTo":   cardA.CardNumber,
		"amount":         1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/cards/transfers", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[domain.PageResponse[domain.Transfer]](t, rec)
	assert.Equal(t, 1, history.TotalElements)
}

func TestAPI_TransferValidation(t *testing.T) {
	a := newAPI(t, handler.Options{})
	user := a.signUp("alice")

	cases := map[string]map[string]any{
		"short number":      {"cardNumberFrom": "1234", "cardNumberTo": "4000000000000002", "amount": 1},
		"non-digit number":  {"cardNumberFrom": "40000000000000ab", "cardNumberTo": "4000000000000002", "amount": 1},
		"zero amount":       {"cardNumberFrom": "4000000000000001", "cardNumberTo": "4000000000000002", "amount": 0},
		"fractional amount": {"cardNumberFrom": "4000000000000001", "cardNumberTo": "4000000000000002", "amount": "1.5"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/api/cards", user, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/cards", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+user)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ForeignCardIsMasked(t *testing.T) {
	a := newAPI(t, handler.Options{})
	admin := a.adminToken()
	alice := a.signUp("alice")
	a.signUp("bobby")
	bobCard := a.issueCard(admin, a.userID(admin, "bobby"), "4000000000000003", 50, "ACTIVE")

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/cards/"+bobCard.ID.String()+"/balance", alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/cards/"+bobCard.ID.String()+"/block-request", alice, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/cards/not-a-uuid/balance", alice, nil).Code)
}

func TestAPI_BlockRequestAndAdminLifecycle(t *testing.T) {
	a := newAPI(t, handler.Options{})
	admin := a.adminToken()
	user := a.signUp("alice")
	card := a.issueCard(admin, a.userID(admin, "alice"), "4000000000000001", 0, "ACTIVE")
	path := "/api/cards/" + card.ID.String() + "/block-request"

	rec := a.do(http.MethodPost, path, user, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.CardStatusBlocked, decode[domain.BlockRequest](t, rec).ToStatus)

	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, path, user, nil).Code)

	rec = a.do(http.MethodGet, "/api/admin/block-requests", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.PageResponse[domain.BlockRequest]](t, rec).TotalElements)

	rec = a.do(http.MethodPatch, "/api/admin/cards/"+card.ID.String()+"/active", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CardStatusActive, decode[domain.Card](t, rec).Status)

	rec = a.do(http.MethodPatch, "/api/admin/cards/"+card.ID.String()+"/block", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CardStatusBlocked, decode[domain.Card](t, rec).Status)

	rec = a.do(http.MethodPost, "/api/cards/filter", user, map[string]any{"status": "BLOCKED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.PageResponse[domain.Card]](t, rec).TotalElements)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/admin/cards/"+card.ID.String(), admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/admin/cards/"+card.ID.String(), admin, nil).Code)

	rec = a.do(http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.OperationStats](t, rec)
	assert.Equal(t, int64(1), stats.BlockRequests)
}

func TestAPI_AdminCardErrors(t *testing.T) {
	a := newAPI(t, handler.Options{})
	admin := a.adminToken()
	a.signUp("alice")
	aliceID := a.userID(admin, "alice")
	a.issueCard(admin, aliceID, "4000000000000001", 0, "ACTIVE")

	body := map[string]any{"cardNumber": "4000000000000001", "status": "ACTIVE", "balance": 0, "expiryDate": "2030-12"}
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/api/admin/cards/"+aliceID, admin, body).Code)

	body["cardNumber"] = "4000000000000009"
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/admin/cards/00000000-0000-0000-0000-000000000001", admin, body).Code)

	body["status"] = "LOST"
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/admin/cards/"+aliceID, admin, body).Code)

	body["status"] = "ACTIVE"
	body["expiryDate"] = "12/2030"
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/admin/cards/"+aliceID, admin, body).Code)
}

// --- Users ---

func TestAPI_UserAdministration(t *testing.T) {
	a := newAPI(t, handler.Options{})
	admin := a.adminToken()

	rec := a.do(http.MethodPost, "/api/admin/users", admin, map[string]string{
		"name": "carol", "email": "carol@example.com", "password": "secret123", "role": "ROLE_USER",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.NotContains(t, created, "passwordHash")
	id := created["id"].(string)

	rec = a.do(http.MethodPost, "/api/admin/users", admin, map[string]string{
		"name": "dave1", "email": "dave@example.com", "password": "secret123", "role": "ROLE_ROOT",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPatch, "/api/admin/users/"+id, admin, map[string]string{"email": "carol2@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol2@example.com", decode[domain.User](t, rec).Email)

	rec = a.do(http.MethodGet, "/api/admin/users/"+id, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", decode[domain.User](t, rec).Name)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/admin/users/"+id, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/admin/users/"+id, admin, nil).Code)
}
