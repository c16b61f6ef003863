package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

const testSecret = "test-signing-secret"

var testNow = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope[T any] struct {
	Data       T                  `json:"data"`
	Warning    string             `json:"warning"`
	Violations []domain.Violation `json:"violations"`
	Error      string             `json:"error"`
	Fields     []fieldError       `json:"fields"`
}

type harness struct {
	t     *testing.T
	svc   *core.Service
	srv   *Server
	token string
}

func newHarness(t *testing.T, cfg Config, svcOpts []core.Option, opts ...Option) *harness {
	t.Helper()
	if cfg.JWTSecret == "" && !cfg.AllowAnonymous {
		cfg.JWTSecret = testSecret
	}
	svcOpts = append([]core.Option{core.WithClock(core.ClockFunc(func() time.Time { return testNow }))}, svcOpts...)
	svc := core.NewInMemoryService(nil, svcOpts...)
	srv, err := New(svc, cfg, opts...)
	require.NoError(t, err)
	h := &harness{t: t, svc: svc, srv: srv}
	if cfg.JWTSecret != "" {
		h.token = signToken(t, cfg.JWTSecret, "alice", time.Now().Add(time.Hour))
	}
	return h
}

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.doAs(h.token, method, path, body)
}

func (h *harness) doAs(token, method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) createLead(first string) domain.Lead {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/v1/leads", gin.H{"first_name": first, "last_name": "Tester", "email": first + "@example.com"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Lead](h.t, rec).Data
}

func (h *harness) createDeal(leadID string) domain.Deal {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/v1/deals", gin.H{"lead_id": leadID, "title": "Annual plan", "amount": 1200, "probability": 40})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Deal](h.t, rec).Data
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}
