package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"fastfare/internal/shared/logger"
	in "fastfare/internal/tracking/application/ports/in"
	"fastfare/internal/tracking/domain"
)

const maxBodySize = 1 << 20 // 1MB

// HTTPHandler serves the fleet read model and the HTTP report fallback.
type HTTPHandler struct {
	trackingUC in.TrackingUseCase
	fleetUC    in.FleetViewUseCase
	log        *logger.Logger
}

func NewHTTPHandler(trackingUC in.TrackingUseCase, fleetUC in.FleetViewUseCase, log *logger.Logger) *HTTPHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPHandler{trackingUC: trackingUC, fleetUC: fleetUC, log: log}
}

// RegisterRoutes mounts the handlers. auth wraps every /api route; pass
// NoAuth when tokens are not required.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux, auth func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /api/fleet", auth(h.handleFleet))
	mux.HandleFunc("GET /api/drivers", auth(h.handleListDrivers))
	mux.HandleFunc("GET /api/drivers/{driver_id}", auth(h.handleGetDriver))
	mux.HandleFunc("POST /api/drivers/{driver_id}/location", auth(h.handleReportLocation))
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.trackingUC.Stats()
	h.respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Service:  "tracking",
		Sessions: stats.Sessions,
		Drivers:  stats.Drivers,
	})
}

func (h *HTTPHandler) handleFleet(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.fleetUC.Execute(r.Context()))
}

func (h *HTTPHandler) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, DriversResponse{Drivers: h.trackingUC.ListPositions(r.Context())})
}

func (h *HTTPHandler) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	driverID := strings.TrimSpace(r.PathValue("driver_id"))

	pos, err := h.trackingUC.GetPosition(r.Context(), driverID)
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pos)
}

// handleReportLocation accepts the report-position body. The path driver
// id always wins over one in the body.
func (h *HTTPHandler) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	driverID := strings.TrimSpace(r.PathValue("driver_id"))
	if driverID == "" {
		h.respondError(w, http.StatusBadRequest, "driver_id is required")
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.log.Warn(logger.Entry{
			Action:   "http_report_invalid_body",
			Message:  err.Error(),
			DriverID: driverID,
		})
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := domain.DecodeReport(body, "")
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}
	report.DriverID = driverID

	pos, ok := h.trackingUC.ReportPosition(r.Context(), report)
	if !ok {
		h.handleUseCaseError(w, domain.ErrEmptyDriverID)
		return
	}
	h.respondJSON(w, http.StatusAccepted, pos)
}

func (h *HTTPHandler) handleUseCaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDriverNotFound):
		h.respondError(w, http.StatusNotFound, "driver not found")
	case errors.Is(err, domain.ErrInvalidPayload):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEmptyDriverID):
		h.respondError(w, http.StatusBadRequest, "driver_id is required")
	default:
		h.log.Error(logger.Entry{
			Action:  "tracking_usecase_error",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error(logger.Entry{
			Action:  "encode_tracking_response_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, status int, message string) {
	respondError(w, status, message)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func readBody(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	return body, nil
}
