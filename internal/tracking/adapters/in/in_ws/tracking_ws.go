package in_ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fastfare/internal/shared/auth"
	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/ws"
	in "fastfare/internal/tracking/application/ports/in"
	"fastfare/internal/tracking/domain"
)

// Handler maps the tracking wire events onto the tracking use case.
type Handler struct {
	uc  in.TrackingUseCase
	log *logger.Logger
}

var _ ws.Handler = (*Handler)(nil)

func NewHandler(uc in.TrackingUseCase, log *logger.Logger) *Handler {
	return &Handler{uc: uc, log: log}
}

// OnConnect registers the session. Metadata is advisory; a DRIVER token
// pins the session to the token subject.
func (h *Handler) OnConnect(c *ws.Client) error {
	role := domain.RoleFromClientType(c.Meta.ClientType)
	driverID := c.Meta.DriverID
	if id := tokenDriverID(c); id != "" {
		role = domain.RoleDriver
		driverID = id
	}
	if role != domain.RoleDriver {
		driverID = ""
	}

	h.uc.Connect(context.Background(), c, in.ConnectInput{Role: role, DriverID: driverID})
	return nil
}

func (h *Handler) OnClose(c *ws.Client) {
	h.uc.Disconnect(context.Background(), c.ID())
}

// OnMessage handles one client frame. Errors are answered with an error
// event on the same connection and returned for logging.
func (h *Handler) OnMessage(c *ws.Client, messageType string, data json.RawMessage) error {
	ctx := context.Background()

	err := h.dispatch(ctx, c, messageType, data)
	if err != nil {
		_ = c.SendJSON(domain.EventError, errorPayload{Event: messageType, Message: err.Error()})
	}
	return err
}

type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

func (h *Handler) dispatch(ctx context.Context, c *ws.Client, messageType string, data json.RawMessage) error {
	switch messageType {
	case domain.EventJoinDashboard:
		return h.uc.JoinDashboard(ctx, c.ID())

	case domain.EventJoinTracking:
		id, err := decodeID(data, "shipmentTrackingId", "trackingId")
		if err != nil {
			return err
		}
		return h.uc.JoinTracking(ctx, c.ID(), id)

	case domain.EventJoinDriverChannel:
		id, err := decodeID(data, "driverId")
		if err != nil {
			return err
		}
		return h.uc.JoinDriverChannel(ctx, c.ID(), id)

	case domain.EventLeave:
		var req struct {
			Topic string `json:"topic"`
			ID    string `json:"id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		topic, err := domain.ParseTopic(req.Topic, strings.TrimSpace(req.ID))
		if err != nil {
			return err
		}
		return h.uc.Leave(ctx, c.ID(), topic)

	case domain.EventReportPosition:
		report, err := domain.DecodeReport(data, c.ID())
		if err != nil {
			if tokenDriverID(c) == "" && domain.ReportDriverID(data) == "" {
				h.log.Debug(logger.Entry{
					Action:     "report_dropped",
					Message:    err.Error(),
					Additional: map[string]any{"connection_id": c.ID()},
				})
				return nil
			}
			return err
		}
		if id := tokenDriverID(c); id != "" {
			report.DriverID = id
		}
		// A report without a driver id is dropped without an error event.
		h.uc.ReportPosition(ctx, report)
		return nil

	case domain.EventDriverStatus:
		h.uc.DriverStatus(ctx, c.ID(), data)
		return nil

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, messageType)
	}
}

// decodeID accepts either a bare JSON string or an object carrying the id
// under one of keys.
func decodeID(data json.RawMessage, keys ...string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("%w: expected string or object", domain.ErrInvalidPayload)
	}
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %s must be a string", domain.ErrInvalidPayload, k)
		}
		return strings.TrimSpace(s), nil
	}
	return "", errors.Join(domain.ErrInvalidPayload, fmt.Errorf("missing %s", keys[0]))
}

func tokenDriverID(c *ws.Client) string {
	if c.UserID != "" && strings.EqualFold(c.Role, auth.RoleDriver) {
		return c.UserID
	}
	return ""
}
