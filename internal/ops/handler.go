// Package ops serves the operational HTTP surface of the admission worker:
// liveness, readiness, metrics, on-demand reconciliation and submission search.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"admission-portal/internal/admission/reconciliation"
	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/search"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 3 * time.Second

type Reconciler interface {
	RunPass(ctx context.Context, trigger string) (*reconciliation.Result, error)
	ReconcileSubmission(ctx context.Context, trigger string, submissionID int64) (*reconciliation.Result, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Page, error)
}

// Check is one readiness probe, such as a database ping.
type Check func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Check
}

type Handler struct {
	reconciler Reconciler
	searcher   Searcher
	checks     []namedCheck
	logger     logger.Logger
	now        func() time.Time
}

type Option func(*Handler)

func WithReadinessCheck(name string, c Check) Option {
	return func(h *Handler) { h.checks = append(h.checks, namedCheck{name: name, check: c}) }
}

// WithSearch enables GET /submissions/search.
func WithSearch(s Searcher) Option {
	return func(h *Handler) { h.searcher = s }
}

func New(reconciler Reconciler, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		reconciler: reconciler,
		logger:     log.WithFields(map[string]interface{}{"component": "ops"}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/reconciliation", func(r chi.Router) {
		r.Post("/run", h.HandleRunPass)
		r.Post("/submissions/{id}", h.HandleReconcileSubmission)
	})
	if h.searcher != nil {
		r.Get("/submissions/search", h.HandleSearch)
	}
	return r
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   h.now().UTC().Format(time.RFC3339),
	})
}

// HandleReady runs every readiness check and reports 503 if any fails.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.name] = err.Error()
			continue
		}
		results[c.name] = "ok"
	}

	body := map[string]interface{}{
		"status": "ready",
		"checks": results,
		"time":   h.now().UTC().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	writeJSON(w, status, body)
}

// HandleRunPass handles POST /reconciliation/run.
func (h *Handler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.RunPass(r.Context(), reconciliation.TriggerHTTP)
	if err != nil {
		h.logger.Error("Reconciliation pass failed", map[string]interface{}{
			"requestId": middleware.GetReqID(r.Context()),
			"error":     err.Error(),
		})
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReconcileSubmission handles POST /reconciliation/submissions/{id}.
func (h *Handler) HandleReconcileSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperrors.NewValidationError("invalid submission id",
			apperrors.FieldError{Field: "id", Message: "must be a positive integer"}))
		return
	}

	res, err := h.reconciler.ReconcileSubmission(r.Context(), reconciliation.TriggerHTTP, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSearch handles GET /submissions/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := search.Query{
		Text:       qs.Get("q"),
		Faculty:    qs.Get("faculty"),
		Status:     qs.Get("status"),
		Type:       qs.Get("type"),
		UnpaidOnly: qs.Get("unpaid") == "true",
	}
	q.From, _ = strconv.Atoi(qs.Get("from"))
	q.Size, _ = strconv.Atoi(qs.Get("size"))

	page, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		h.logger.Warn("Submission search failed", map[string]interface{}{"error": err.Error()})
		writeError(w, apperrors.NewResourceUnavailableError("elasticsearch", err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidationFailed, apperrors.ErrCodeInvalidStatusTransition, apperrors.ErrCodeInvalidReferenceState:
		return http.StatusBadRequest
	case apperrors.ErrCodeSubmissionNotFound, apperrors.ErrCodeDraftNotFound, apperrors.ErrCodeReferenceNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeAlreadySubmitted, apperrors.ErrCodeDuplicateDraft, apperrors.ErrCodeDuplicateReference,
		apperrors.ErrCodeReferenceAlreadyClaimed, apperrors.ErrCodeReferenceFlagged:
		return http.StatusConflict
	case apperrors.ErrCodeResourceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	writeJSON(w, statusFor(stdErr.Code), stdErr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
