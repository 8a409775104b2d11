package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tcm-go/internal/catalog"
)

// defaultRunLimit is how many sync runs GET /runs returns without a limit.
const defaultRunLimit = 20

// Writer performs every request that changes the catalog. *catalog.Service
// implements it; the app wraps it so each write is snapshotted.
type Writer interface {
	Sync(ctx context.Context, locator string) (*catalog.SyncRun, error)
	RecordReview(ctx context.Context, key string, in catalog.ReviewInput) error
	RecordInvestment(ctx context.Context, key string, in catalog.InvestmentInput) error
	BulkUpdateClassification(ctx context.Context, keys []string, field, value string) (int, error)
}

// Handler exposes the catalog service over HTTP.
type Handler struct {
	svc    *catalog.Service
	writes Writer
	logger catalog.Logger
}

// NewHandler creates a Handler. Reads go to svc. If writes is nil, writes go
// to svc as well.
func NewHandler(svc *catalog.Service, writes Writer, logger catalog.Logger) *Handler {
	if writes == nil {
		writes = svc
	}
	return &Handler{svc: svc, writes: writes, logger: logger}
}

type syncRequest struct {
	Locator string `json:"locator"`
}

func (h *Handler) Sync(c *gin.Context) {
	var body syncRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	locator := strings.TrimSpace(body.Locator)
	if locator == "" {
		h.writeError(c, &catalog.ValidationError{Field: "locator", Reason: "required"})
		return
	}

	run, err := h.writes.Sync(c.Request.Context(), locator)
	if err != nil {
		h.writeErrorWithRun(c, err, run)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) RecordReview(c *gin.Context) {
	var body catalog.ReviewInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	key := c.Param("key")
	if err := h.writes.RecordReview(c.Request.Context(), key, body); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "status": "recorded"})
}

func (h *Handler) RecordInvestment(c *gin.Context) {
	var body catalog.InvestmentInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	key := c.Param("key")
	if err := h.writes.RecordInvestment(c.Request.Context(), key, body); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "status": "recorded"})
}

type classificationRequest struct {
	Keys  []string `json:"keys"`
	Field string   `json:"field"`
	Value string   `json:"value"`
}

func (h *Handler) BulkUpdateClassification(c *gin.Context) {
	var body classificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	n, err := h.writes.BulkUpdateClassification(c.Request.Context(), body.Keys, body.Field, body.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// ListResources filters the canonical scope by query parameters. Repeating a
// parameter matches any of its values: ?type=file&type=link.
func (h *Handler) ListResources(c *gin.Context) {
	rs, err := h.svc.ListActive(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": nonNil(rs), "count": len(rs)})
}

func (h *Handler) ListScope(c *gin.Context) {
	rs, err := h.svc.GetByScope(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": c.Param("name"), "resources": nonNil(rs), "count": len(rs)})
}

func (h *Handler) ListMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": catalog.MetricNames(), "scopes": catalog.ScopeNames()})
}

func (h *Handler) Aggregate(c *gin.Context) {
	agg, err := h.svc.Aggregate(c.Request.Context(), c.Param("name"), c.Query("group_by"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(c, &catalog.ValidationError{Field: "limit", Reason: "must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": nonNil(runs)})
}

func (h *Handler) Reconcile(c *gin.Context) {
	rec, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "phase": h.svc.Phase()})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	h.writeErrorWithRun(c, err, nil)
}

// writeErrorWithRun maps the catalog error taxonomy to status codes. A failed
// sync still reports the run it recorded.
func (h *Handler) writeErrorWithRun(c *gin.Context, err error, run *catalog.SyncRun) {
	var (
		verrs ValidationFields
		fatal *catalog.FatalSyncError
	)
	body := gin.H{"error": err.Error()}
	if run != nil {
		body["run"] = run
	}

	switch {
	case verrs.from(err):
		body["fields"] = verrs
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, catalog.ErrSyncInProgress):
		c.JSON(http.StatusConflict, body)
	case errors.As(err, &fatal):
		h.logger.Error("sync failed", "phase", fatal.Phase, "error", err)
		c.JSON(http.StatusBadGateway, body)
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ValidationFields is the per-field breakdown of a 400 response.
type ValidationFields []*catalog.ValidationError

func (v *ValidationFields) from(err error) bool {
	var many catalog.ValidationErrors
	if errors.As(err, &many) {
		*v = ValidationFields(many)
		return true
	}
	var one *catalog.ValidationError
	if errors.As(err, &one) {
		*v = ValidationFields{one}
		return true
	}
	return false
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
