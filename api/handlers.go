/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes statement generation and the plausibility check via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  settlement and plausibility packages.

ENDPOINTS:
  Statements:
    GET    /api/units/{id}/statements/{year}               Generate statement
    GET    /api/units/{id}/statements/{year}/validation    Input problems only
    POST   /api/units/{id}/statements/{year}/plausibility  Generate + check
           ?feedback=true feeds recent user reports to the AI pass

  Sweep:
    GET    /api/sweep                  Last background validation report

  Feedback:
    GET    /api/feedback?limit=20      Recent false-negative reports
    POST   /api/feedback               Report a missed problem

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Assembler: statement generation (settlement package)
  - Checker: rule + AI plausibility check
  - Feedback: user reports for the AI prompt
  - Records: write side of the store, for scenarios

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed path, query or body
  - 404: Unit or community not found
  - 422: Inputs incomplete or invalid (MEA missing, external data absent,
         unknown allocation key, year out of range)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/weg-settlement/plausibility"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Assembler *settlement.Assembler
	Checker   *plausibility.Checker
	Feedback  weg.FeedbackStore
	Records   weg.RecordWriter
	Logger    logrus.FieldLogger

	// Health pings the store when set.
	Store Pinger

	// Sweep serves GET /api/sweep when set.
	Sweep *ValidationScheduler

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the handler. records may be nil when scenarios are off.
func NewHandler(assembler *settlement.Assembler, checker *plausibility.Checker, feedback weg.FeedbackStore, records weg.RecordWriter, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = settlement.DiscardLogger()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Assembler: assembler,
		Checker:   checker,
		Feedback:  feedback,
		Records:   records,
		Logger:    logger,
		validate:  v,
	}
}

// Health reports liveness and, when a store is wired, its reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// GetStatement generates the statement for a unit and year.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	unitID, year, ok := statementParams(w, r)
	if !ok {
		return
	}

	stmt, err := h.Assembler.GenerateStatement(r.Context(), unitID, year)
	if err != nil {
		h.writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(stmt))
}

// ValidateStatement lists every input problem without generating.
func (h *Handler) ValidateStatement(w http.ResponseWriter, r *http.Request) {
	unitID, year, ok := statementParams(w, r)
	if !ok {
		return
	}

	errs, err := h.Assembler.ValidateInputs(r.Context(), unitID, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to validate inputs", err)
		return
	}
	if weg.IsNotFound(errs) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Unit not found", Details: errs.Error(), Fields: toValidationDTOs(errs)})
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{Valid: len(errs) == 0, Errors: toValidationDTOs(errs)})
}

// CheckPlausibility generates the statement and runs the plausibility check.
func (h *Handler) CheckPlausibility(w http.ResponseWriter, r *http.Request) {
	unitID, year, ok := statementParams(w, r)
	if !ok {
		return
	}

	includeFeedback := false
	if v := r.URL.Query().Get("feedback"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid feedback flag", err)
			return
		}
		includeFeedback = b
	}

	stmt, err := h.Assembler.GenerateStatement(r.Context(), unitID, year)
	if err != nil {
		h.writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Checker.Run(r.Context(), stmt, includeFeedback))
}

func statementParams(w http.ResponseWriter, r *http.Request) (weg.UnitID, int, bool) {
	unitID := chi.URLParam(r, "id")
	if unitID == "" {
		writeError(w, http.StatusBadRequest, "Unit ID required", nil)
		return "", 0, false
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return "", 0, false
	}
	return weg.UnitID(unitID), year, true
}

// writeGenerationError maps engine errors to HTTP status codes.
func (h *Handler) writeGenerationError(w http.ResponseWriter, err error) {
	var verrs weg.ValidationErrors
	errors.As(err, &verrs)

	switch {
	case weg.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Unit not found", Details: err.Error(), Fields: toValidationDTOs(verrs)})
	case weg.IsClientError(err):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Statement inputs invalid", Details: err.Error(), Fields: toValidationDTOs(verrs)})
	default:
		h.Logger.WithError(err).Error("statement request failed")
		writeError(w, http.StatusInternalServerError, "Failed to generate statement", err)
	}
}

// =============================================================================
// FEEDBACK HANDLERS
// =============================================================================

// SubmitFeedback stores a report that the check missed a problem.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid feedback", err)
		return
	}

	fb := weg.Feedback{
		ID:        uuid.NewString(),
		UnitID:    weg.UnitID(req.UnitID),
		Year:      req.Year,
		Message:   strings.TrimSpace(req.Message),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Feedback.SaveFeedback(r.Context(), fb); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeedbackDTO(fb))
}

// ListFeedback returns the most recent reports, newest first.
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	items, err := h.Feedback.RecentFeedback(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list feedback", err)
		return
	}
	dtos := make([]FeedbackDTO, len(items))
	for i, f := range items {
		dtos[i] = toFeedbackDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				resp.Fields = append(resp.Fields, ValidationErrorDTO{Field: fe.Field(), Message: fe.Tag()})
			}
		}
	}
	writeJSON(w, status, resp)
}
