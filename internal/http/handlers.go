package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-query-service/internal/dispatch"
	"github.com/kjstillabower/agri-query-service/internal/health"
	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// ServiceName is reported by the health endpoint.
const ServiceName = observability.ServiceName

// Dispatcher is implemented by dispatch.Dispatcher.
type Dispatcher interface {
	Handle(ctx context.Context, req dispatch.Request) models.AggregatedResponse
}

// HealthChecker is implemented by health.Checker.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dispatcher    Dispatcher
	health        HealthChecker
	logger        *zap.Logger
	maxQueryRunes int
	now           func() time.Time
}

// NewHandler returns a new Handler. maxQueryRunes bounds query_text; zero disables the limit.
func NewHandler(dispatcher Dispatcher, checker HealthChecker, logger *zap.Logger, maxQueryRunes int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dispatcher:    dispatcher,
		health:        checker,
		logger:        logger,
		maxQueryRunes: maxQueryRunes,
		now:           time.Now,
	}
}

// PostDispatch handles POST /v1/dispatch. Validation failures are 400; once a
// request is accepted the response is always 200 with per-capability results.
func (h *Handler) PostDispatch(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	req, reqErr := parseDispatchRequest(r, h.now().UTC(), h.maxQueryRunes)
	if reqErr != nil {
		logger.Debug("dispatch request rejected", zap.String("code", reqErr.code), zap.String("message", reqErr.message))
		writeError(w, r, http.StatusBadRequest, reqErr.code, reqErr.message)
		return
	}
	req.RequestID = observability.CorrelationIDFromContext(r.Context())

	resp := h.dispatcher.Handle(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	writeJSON(w, report.Code, map[string]interface{}{
		"status":    report.Status,
		"service":   ServiceName,
		"version":   "dev",
		"checks":    report.Checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}
