package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmcore/internal/adapters/auditexport"
	"crmcore/internal/core"
	blobmemory "crmcore/internal/infra/blob/memory"
	"crmcore/internal/notify"
	"crmcore/pkg/domain"
)

func TestAuditListFilters(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")
	h.createDeal(lead.ID)

	rec := h.do(http.MethodGet, "/api/v1/audit?table_name=deals", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[[]domain.AuditLogEntry](t, rec).Data
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntityDeal, entries[0].TableName)

	rec = h.do(http.MethodGet, "/api/v1/audit?table_name=lead_sources", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/audit/lead_sources/anything", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/audit/leads/missing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(string(mustField(t, rec, "data"))))
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, name string) json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	decodeInto(t, rec, &body)
	raw, ok := body[name]
	require.True(t, ok, "field %q missing from %s", name, rec.Body.String())
	return raw
}

func withExports(t *testing.T, h *harness) {
	t.Helper()
	exporter := auditexport.New(h.svc, blobmemory.New())
	worker := auditexport.NewWorker(exporter, 4)
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})
	srv, err := New(h.svc, Config{JWTSecret: testSecret}, WithExports(worker))
	require.NoError(t, err)
	h.srv = srv
}

func TestAuditExportJob(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	withExports(t, h)
	h.createLead("Ada")
	h.createLead("Grace")

	rec := h.do(http.MethodPost, "/api/v1/audit/exports", gin.H{"format": "csv", "table_name": "leads"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[auditexport.Job](t, rec).Data
	assert.Equal(t, "alice", job.Request.RequestedBy)
	location := rec.Header().Get("Location")
	assert.Equal(t, "/api/v1/audit/exports/"+job.ID, location)

	var finished auditexport.Job
	require.Eventually(t, func() bool {
		rec := h.do(http.MethodGet, location, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		finished = decode[auditexport.Job](t, rec).Data
		return finished.Done()
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, auditexport.StatusSucceeded, finished.Status, finished.Error)
	require.NotNil(t, finished.Artifact)
	assert.Equal(t, 2, finished.Artifact.Entries)
	assert.True(t, strings.HasPrefix(finished.Artifact.Key, auditexport.KeyPrefix))

	jobs := decode[[]auditexport.Job](t, h.do(http.MethodGet, "/api/v1/audit/exports", nil)).Data
	assert.Len(t, jobs, 1)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/audit/exports/missing", nil).Code)

	rec = h.do(http.MethodPost, "/api/v1/audit/exports", gin.H{"format": "xml"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[any](t, rec).Fields, fieldError{Field: "format", Rule: "oneof"})
}

func TestExportRoutesAbsentWithoutWorker(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	rec := h.do(http.MethodGet, "/api/v1/audit/exports", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	require.NoError(t, err)
	h := newHarness(t, Config{}, []core.Option{core.WithMetricsRecorder(recorder)}, WithMetricsGatherer(registry))
	h.createLead("Ada")

	rec := h.doAs("", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crmcore_service_operations_total")
	assert.Contains(t, rec.Body.String(), `operation="create_lead"`)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, Config{CORSOrigins: []string{"https://app.example.com"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/leads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/leads", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEventStream(t *testing.T) {
	broker := notify.NewBroker()
	h := newHarness(t, Config{}, []core.Option{core.WithNotifier(broker)}, WithEvents(broker))
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events?entity=leads", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token)

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := ts.Client().Do(req)
		done <- result{resp, err}
	}()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	rec := h.do(http.MethodPost, "/api/v1/campaigns", gin.H{"name": "Ignored"})
	require.Equal(t, http.StatusCreated, rec.Code)
	lead := h.createLead("Ada")

	res := <-done
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	assert.Equal(t, http.StatusOK, res.resp.StatusCode)
	assert.Contains(t, res.resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(res.resp.Body)
	var event notify.Event
	var name string
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event:"); ok {
			name = v
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			require.NoError(t, json.Unmarshal([]byte(v), &event))
			break
		}
	}
	assert.Equal(t, "create", name)
	assert.Equal(t, domain.EntityLead, event.Entity)
	assert.Equal(t, lead.ID, event.RecordID)
	assert.Equal(t, "alice", event.UserID)
}

func TestEventStreamSkipsRedeliveredEvents(t *testing.T) {
	broker := notify.NewBroker()
	h := newHarness(t, Config{}, []core.Option{core.WithNotifier(broker)}, WithEvents(broker))
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token)

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := ts.Client().Do(req)
		if err != nil {
			done <- nil
			return
		}
		done <- resp
	}()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	first := notify.NewEvent(domain.EntityLead, "lead-1", domain.ActionCreate, "alice")
	second := notify.NewEvent(domain.EntityLead, "lead-1", domain.ActionUpdate, "alice")
	broker.Publish(context.Background(), first, first, second)

	resp := <-done
	require.NotNil(t, resp)
	defer resp.Body.Close()

	var ids []string
	scanner := bufio.NewScanner(resp.Body)
	for len(ids) < 2 && scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "data:"); ok {
			var event notify.Event
			require.NoError(t, json.Unmarshal([]byte(v), &event))
			ids = append(ids, event.ID)
		}
	}
	assert.Equal(t, []string{first.ID, second.ID}, ids)
}
