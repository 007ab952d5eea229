package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bp_client/internal/core"
	"bp_client/internal/domain/model"
	"bp_client/internal/infrastructure/mlclient"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

//go:embed static/index.html
var indexPage []byte

type Handler struct {
	service *core.PredictionService
	logger  *zap.Logger
}

func NewHandler(service *core.PredictionService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter wires the form page, the three form endpoints and the history
// endpoint behind CORS and request logging.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/predict", h.Predict).Methods(http.MethodPost)
	r.HandleFunc("/add_data", h.AddData).Methods(http.MethodPost)
	r.HandleFunc("/retrain", h.Retrain).Methods(http.MethodPost)
	r.HandleFunc("/history", h.History).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(h.loggingMiddleware(r))
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	values, err := parseFloats(r, "workday", "stress_levels", "sleep_quality", "tiredness")
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: "+err.Error())
		return
	}

	result, err := h.service.Predict(r.Context(), model.PredictionInput{
		Workday:      values["workday"],
		StressLevels: values["stress_levels"],
		SleepQuality: values["sleep_quality"],
		Tiredness:    values["tiredness"],
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeText(w, http.StatusOK, fmt.Sprintf("Predicted Upper BP: %.2f, Predicted Lower BP: %.2f", result.UpperBP, result.LowerBP))
}

func (h *Handler) AddData(w http.ResponseWriter, r *http.Request) {
	values, err := parseFloats(r, "upper_bp", "lower_bp", "workday", "stress_levels", "sleep_quality", "tiredness")
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: "+err.Error())
		return
	}

	outcome, err := h.service.AddData(r.Context(), []model.TrainingRecord{{
		Workday:      values["workday"],
		StressLevels: values["stress_levels"],
		UpperBP:      values["upper_bp"],
		LowerBP:      values["lower_bp"],
		SleepQuality: values["sleep_quality"],
		Tiredness:    values["tiredness"],
	}})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeText(w, http.StatusOK, outcome.Text())
}

func (h *Handler) Retrain(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.Retrain(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeText(w, http.StatusOK, outcome.Text())
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.service.History(r.Context(), limit)
	if errors.Is(err, core.ErrHistoryDisabled) {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, mlclient.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	writeText(w, status, "Error: "+err.Error())
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}

// parseFloats reads the named form fields as numbers. Every field is required.
func parseFloats(r *http.Request, names ...string) (map[string]float64, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	values := make(map[string]float64, len(names))
	for _, name := range names {
		raw := strings.TrimSpace(r.PostForm.Get(name))
		if raw == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", name)
		}
		values[name] = v
	}
	return values, nil
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapper.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
