package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pricelab/apps"
	"pricelab/db"
	"pricelab/ml"
	"pricelab/monitoring"
	"pricelab/serving"
)

type handlers struct {
	service    *serving.Service
	store      *db.Store
	hub        *monitoring.Hub
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	datasetDir string
	now        func() time.Time
	pages      *pages
	history    *apps.HistoryCache
}

// NewRouter registers every route on a fresh mux.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{
		service:    deps.Service,
		store:      deps.Store,
		hub:        deps.Hub,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		datasetDir: deps.DatasetDir,
		now:        deps.Now,
		pages:      loadPages(),
		history:    apps.NewHistoryCache(),
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}

	mux := http.NewServeMux()
	RegisterUIHandlers(mux, h)
	RegisterAPIHandlers(mux, h)
	return mux
}

func RegisterUIHandlers(mux *http.ServeMux, h *handlers) {
	mux.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /apps/{app}", h.handleForm)
	mux.HandleFunc("POST /apps/{app}", h.handleSubmit)
}

func RegisterAPIHandlers(mux *http.ServeMux, h *handlers) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/apps", h.handleAppList)
	mux.HandleFunc("GET /api/apps/{app}/schema", h.handleSchema)
	mux.HandleFunc("GET /api/apps/{app}/history", h.handleHistory)
	mux.HandleFunc("GET /api/apps/{app}/training-log", h.handleTrainingLog)
	mux.HandleFunc("GET /api/apps/{app}/quality", h.handleQualityIssues)
	mux.HandleFunc("GET /api/apps/{app}/predictions", h.handleRecentPredictions)
	mux.HandleFunc("POST /api/predict/{app}", h.handlePredict)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
	if h.hub != nil {
		mux.Handle("GET /api/ws/events", h.hub)
	}
}

// statusFor maps the domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apps.ErrUnknownApp):
		return http.StatusNotFound
	case errors.Is(err, apps.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrUnknownCategory),
		errors.Is(err, ml.ErrInvalidValue),
		errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, serving.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSONStatus(w, status, map[string]string{"error": err.Error()})
}

// fail logs server side failures and answers with the mapped status.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	respondError(w, status, err)
}

func (h *handlers) publish(t monitoring.EventType, app string, data interface{}) {
	if h.hub != nil {
		h.hub.Publish(t, app, data)
	}
}
