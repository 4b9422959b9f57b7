package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/jobs"
	"github.com/dvloznov/invoice-agent/internal/jobs/inmemory"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

func newTestRouter(t *testing.T, token string) (http.Handler, *pending.Store, *inmemory.Store) {
	t.Helper()
	store := pending.NewStore()
	jobStore := inmemory.NewStore(10)
	h := NewRouter(Deps{
		Pending: store,
		Jobs:    jobStore,
		Locale:  invoice.English,
		Token:   token,
		Started: time.Now(),
		Log:     zerolog.Nop(),
	})
	return h, store, jobStore
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestRouter_Health(t *testing.T) {
	h, store, _ := newTestRouter(t, "")
	store.Create(pending.Submission{})

	rec, body := do(t, h, http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "healthy" || body["pending"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response has no request id")
	}
}

func TestRouter_RequestIDIsEchoed(t *testing.T) {
	h, _, _ := newTestRouter(t, "")

	rec, _ := do(t, h, http.MethodGet, "/health", http.Header{"X-Request-Id": {"req-42"}})

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestRouter_Categories(t *testing.T) {
	h, _, _ := newTestRouter(t, "")

	tests := []struct {
		name      string
		target    string
		wantLabel string
	}{
		{name: "configured locale", target: "/api/categories", wantLabel: "Maintenance"},
		{name: "locale override", target: "/api/categories?locale=he-IL", wantLabel: "אחזקה"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, tt.target, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if body["count"] != float64(20) {
				t.Errorf("count = %v", body["count"])
			}
			first := body["categories"].([]interface{})[0].(map[string]interface{})
			if first["id"] != "maintenance" || first["column"] != "D" || first["label"] != tt.wantLabel {
				t.Errorf("first = %v", first)
			}
		})
	}
}

func TestRouter_Pending(t *testing.T) {
	h, store, _ := newTestRouter(t, "")
	id := store.Create(pending.Submission{
		Submitter: pending.Submitter{ID: 7, DisplayName: "Dana"},
		Record:    invoice.Normalize(invoice.Fields{TotalAmount: invoice.RawAmount(`117`)}),
		Source:    pending.Source{URL: "https://api.telegram.org/file/botTOKEN/x.jpg", Bytes: []byte("jpeg"), MIMEType: "image/jpeg"},
	})

	rec, body := do(t, h, http.MethodGet, "/api/pending", nil)

	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	sub := body["pending"].([]interface{})[0].(map[string]interface{})
	if sub["id"] != id {
		t.Errorf("id = %v, want %s", sub["id"], id)
	}
	record := sub["record"].(map[string]interface{})
	if record["total_amount"] != "117" || record["category"] != "other" {
		t.Errorf("record = %v", record)
	}
	source := sub["source"].(map[string]interface{})
	if _, ok := source["URL"]; ok {
		t.Error("source url exposed")
	}
}

func TestRouter_Jobs(t *testing.T) {
	h, _, jobStore := newTestRouter(t, "")
	ctx := context.Background()
	base := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	for i, j := range []*jobs.Job{
		{JobID: "a", Type: jobs.JobTypeIntake, SubmitterID: 7, Status: jobs.JobStatusCompleted},
		{JobID: "b", Type: jobs.JobTypeDecision, Status: jobs.JobStatusFailed},
		{JobID: "c", Type: jobs.JobTypeIntake, SubmitterID: 8, Status: jobs.JobStatusRunning},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := jobStore.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount float64
	}{
		{name: "all", target: "/api/jobs", wantCode: http.StatusOK, wantCount: 3},
		{name: "by type", target: "/api/jobs?type=intake", wantCode: http.StatusOK, wantCount: 2},
		{name: "by submitter", target: "/api/jobs?submitter_id=8", wantCode: http.StatusOK, wantCount: 1},
		{name: "by status", target: "/api/jobs?status=failed", wantCode: http.StatusOK, wantCount: 1},
		{name: "limit", target: "/api/jobs?limit=2", wantCode: http.StatusOK, wantCount: 2},
		{name: "offset past end", target: "/api/jobs?offset=5", wantCode: http.StatusOK, wantCount: 0},
		{name: "bad submitter", target: "/api/jobs?submitter_id=x", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, tt.target, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
		})
	}
}

func TestRouter_GetJob(t *testing.T) {
	h, _, jobStore := newTestRouter(t, "")
	_ = jobStore.SaveJob(context.Background(), &jobs.Job{JobID: "j1", Type: jobs.JobTypeDecision, Status: jobs.JobStatusCompleted, Result: "approved"})

	rec, body := do(t, h, http.MethodGet, "/api/jobs/j1", nil)
	if rec.Code != http.StatusOK || body["result"] != "approved" {
		t.Errorf("status = %d, body = %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/jobs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d", rec.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h, _, _ := newTestRouter(t, "")

	rec, _ := do(t, h, http.MethodPost, "/api/pending", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodOptions, "/api/pending", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
}

func TestRouter_Auth(t *testing.T) {
	h, _, _ := newTestRouter(t, "s3cret")

	tests := []struct {
		name     string
		target   string
		header   http.Header
		wantCode int
	}{
		{name: "health is open", target: "/health", wantCode: http.StatusOK},
		{name: "missing token", target: "/api/pending", wantCode: http.StatusUnauthorized},
		{name: "wrong token", target: "/api/pending", header: http.Header{"Authorization": {"Bearer nope"}}, wantCode: http.StatusUnauthorized},
		{name: "valid token", target: "/api/pending", header: http.Header{"Authorization": {"Bearer s3cret"}}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, h, http.MethodGet, tt.target, tt.header)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}
