package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/checkin-insights/internal/logger"
	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/prediction"
	"github.com/benvon/checkin-insights/internal/services/registry"
	"github.com/benvon/checkin-insights/internal/validation"
)

// Predictor answers prediction queries
type Predictor interface {
	Generate(ctx context.Context, q prediction.Query) (*models.PredictionResponse, error)
}

// ModelStatusLister reports model availability per prediction type
type ModelStatusLister interface {
	Status(ctx context.Context) []registry.ModelStatus
}

// PredictionHandler handles prediction requests
type PredictionHandler struct {
	predictor Predictor
	models    ModelStatusLister
	logger    *zap.Logger
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(predictor Predictor, models ModelStatusLister, log *zap.Logger) *PredictionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PredictionHandler{predictor: predictor, models: models, logger: log}
}

// RegisterRoutes registers prediction routes on the /api/v1 router
func (h *PredictionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/users/{userID}/predictions", h.GetPredictions).Methods(http.MethodGet)
	r.HandleFunc("/prediction-types", h.ListPredictionTypes).Methods(http.MethodGet)
}

// GetPredictions handles GET /users/{userID}/predictions
func (h *PredictionHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	resp, err := h.predictor.Generate(r.Context(), q)
	if err != nil {
		h.respondPredictionError(w, q.UserID, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// PredictionTypeInfo describes one supported prediction type
type PredictionTypeInfo struct {
	Type         models.PredictionType `json:"type"`
	MultiClass   bool                  `json:"multiClass"`
	Sensitive    bool                  `json:"sensitive"`
	ModelVersion *string               `json:"modelVersion"`
	Available    bool                  `json:"modelAvailable"`
	Reason       string                `json:"reason,omitempty"`
}

// ListPredictionTypes handles GET /prediction-types
func (h *PredictionHandler) ListPredictionTypes(w http.ResponseWriter, r *http.Request) {
	status := make(map[models.PredictionType]registry.ModelStatus)
	if h.models != nil {
		for _, s := range h.models.Status(r.Context()) {
			status[s.Type] = s
		}
	}

	types := models.AllPredictionTypes()
	out := make([]PredictionTypeInfo, 0, len(types))
	for _, t := range types {
		s := status[t]
		out = append(out, PredictionTypeInfo{
			Type:         t,
			MultiClass:   t.MultiClass(),
			Sensitive:    t.Sensitive(),
			ModelVersion: s.Version,
			Available:    s.Available,
			Reason:       s.Reason,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *PredictionHandler) respondPredictionError(w http.ResponseWriter, userID uuid.UUID, err error) {
	status := prediction.HTTPStatus(err)
	var verr *prediction.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSONError(w, status, "Bad Request", verr.Message)
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		h.logger.Debug("prediction_request_canceled", logger.UserID(userID))
	case status == http.StatusServiceUnavailable:
		h.logger.Warn("prediction_source_unavailable",
			logger.UserID(userID),
			zap.Error(err),
		)
		respondJSONError(w, status, "Service Unavailable", "Check-in data is temporarily unavailable")
	case status == http.StatusGatewayTimeout:
		respondJSONError(w, status, "Gateway Timeout", "Prediction request timed out")
	default:
		h.logger.Error("prediction_failed",
			logger.UserID(userID),
			zap.Error(err),
		)
		respondJSONError(w, status, "Internal Server Error", "Failed to generate predictions")
	}
}

// parseQuery builds a prediction query from path and query parameters
func parseQuery(r *http.Request) (prediction.Query, error) {
	var q prediction.Query

	userID, err := uuid.Parse(mux.Vars(r)["userID"])
	if err != nil {
		return q, errors.New("invalid user ID")
	}
	q.UserID = userID

	params := r.URL.Query()
	if raw := params.Get("types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, err := models.ParsePredictionType(part)
			if err != nil {
				return q, validation.ValidatePredictionType(strings.TrimSpace(part))
			}
			q.Types = append(q.Types, t)
		}
	}

	windowDays, present, err := intParam(params, "window_days")
	if err != nil {
		return q, err
	}
	if present {
		if windowDays < 1 || windowDays > prediction.MaxWindowDays {
			return q, fmt.Errorf("window_days must be between 1 and %d", prediction.MaxWindowDays)
		}
		q.WindowDays = prediction.Days(windowDays)
	}
	if q.LimitCheckIns, _, err = intParam(params, "limit_checkins"); err != nil {
		return q, err
	}
	return q, nil
}

// intParam parses an optional integer parameter and reports whether it was supplied
func intParam(params url.Values, name string) (int, bool, error) {
	if !params.Has(name) {
		return 0, false, nil
	}
	v, err := strconv.Atoi(params.Get(name))
	if err != nil {
		return 0, true, errors.New(name + " must be an integer")
	}
	return v, true, nil
}
