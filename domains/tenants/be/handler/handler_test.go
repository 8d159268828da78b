package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/repo"
	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

type noopQueue struct{}

func (noopQueue) Enqueue(context.Context, int64) error { return nil }

type noopDropper struct{}

func (noopDropper) Drop(context.Context, string) error { return nil }

func newTestRouter(t *testing.T) (*chi.Mux, *service.Service) {
	t.Helper()
	svc := service.New(repo.NewMemoryRepository(), noopQueue{}, noopDropper{}, zap.NewNop(),
		service.Config{EnvKey: "local", TrialDays: 14})
	h := New(svc, zap.NewNop())
	r := chi.NewRouter()
	h.Routes(r)
	return r, svc
}

func createBody() []byte {
	b, _ := json.Marshal(map[string]any{
		"name":       "Acme Blog",
		"email":      "owner@acme.test",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"password":   "s3cret-pass",
	})
	return b
}

func TestCreateTenantEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader(createBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/api/v1/tenants/")

	var body tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "acme-blog", body.Slug)
	require.Equal(t, "pending", body.Status)
	require.NotZero(t, body.ID)
}

func TestCreateTenantValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader([]byte(`{"name":"Acme"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateEmailConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader(createBody())))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader(createBody())))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetUnknownTenant(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/not-a-number", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetupProgressEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)

	created, err := svc.Create(context.Background(), service.CreateInput{
		Name: "Acme Blog", Email: "owner@acme.test",
		FirstName: "Ada", LastName: "Lovelace", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/1/setup-progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string `json:"status"`
		IsComplete bool   `json:"is_complete"`
		HasFailed  bool   `json:"has_failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(created.Status), body.Status)
	require.False(t, body.IsComplete)
	require.False(t, body.HasFailed)
}

func TestRetryOnNonFailedTenant(t *testing.T) {
	router, svc := newTestRouter(t)

	_, err := svc.Create(context.Background(), service.CreateInput{
		Name: "Acme Blog", Email: "owner@acme.test",
		FirstName: "Ada", LastName: "Lovelace", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants/1/retry", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteTenantEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewReader(createBody())))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tenants/1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
