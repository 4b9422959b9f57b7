// Package handlers serves the read-only status API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/invoice-agent/internal/api/middleware"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/jobs"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// PendingLister is the read side of the pending-approval store.
type PendingLister interface {
	List() []pending.Submission
	Len() int
}

// HealthHandler reports liveness.
type HealthHandler struct {
	pending PendingLister
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(p PendingLister, started time.Time) *HealthHandler {
	return &HealthHandler{pending: p, started: started, now: time.Now}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"time":    now.Format(time.RFC3339),
		"uptime":  now.Sub(h.started).Round(time.Second).String(),
		"pending": h.pending.Len(),
	})
}

// CategoryView is one row of the category table.
type CategoryView struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Column string `json:"column"`
}

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	locale invoice.Locale
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(locale invoice.Locale) *CategoriesHandler {
	return &CategoriesHandler{locale: locale}
}

// ListCategories handles GET /api/categories. ?locale= overrides the
// configured display locale.
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	locale := h.locale
	if tag := r.URL.Query().Get("locale"); tag != "" {
		locale = invoice.ParseLocale(tag)
	}

	categories := make([]CategoryView, 0, len(invoice.Categories()))
	for _, c := range invoice.Categories() {
		categories = append(categories, CategoryView{
			ID:     c.ID(),
			Label:  c.Label(locale),
			Column: invoice.ColumnName(c.Column()),
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// PendingHandler lists submissions waiting for a decision.
type PendingHandler struct {
	store PendingLister
}

// NewPendingHandler creates a new pending handler.
func NewPendingHandler(store PendingLister) *PendingHandler {
	return &PendingHandler{store: store}
}

// ListPending handles GET /api/pending
func (h *PendingHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	submissions := h.store.List()

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pending": submissions,
		"count":   len(submissions),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		logError(ctx, err, "Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Type:   jobs.JobType(query.Get("type")),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if submitterStr := query.Get("submitter_id"); submitterStr != "" {
		submitterID, err := strconv.ParseInt(submitterStr, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid submitter_id")
			return
		}
		filter.SubmitterID = submitterID
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		logError(ctx, err, "Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.Job{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

func logError(ctx context.Context, err error, msg string) {
	log := logger.FromContext(ctx)
	log.Error().Err(err).Msg(msg)
}
