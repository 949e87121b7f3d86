package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fastfare/internal/shared/logger"
)

// Server wraps http.Server with start and stop logging.
type Server struct {
	addr   string
	log    *logger.Logger
	server *http.Server
}

// NewHTTPServer serves handler on port. WebSocket connections manage their
// own deadlines after the upgrade.
func NewHTTPServer(handler http.Handler, port int, log *logger.Logger) *Server {
	addr := ":" + strconv.Itoa(port)
	return &Server{
		addr: addr,
		log:  log,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *Server) Addr() string { return s.addr }

// Serve blocks until the server stops. A Shutdown is not an error.
func (s *Server) Serve() error {
	s.log.Info(logger.Entry{
		Action:     "http_server_start",
		Message:    "HTTP server listening",
		Additional: map[string]any{"addr": s.addr},
	})

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.log.Error(logger.Entry{
		Action:     "http_server_failed",
		Message:    "HTTP server terminated with error",
		Error:      &logger.ErrObj{Msg: err.Error()},
		Additional: map[string]any{"addr": s.addr},
	})
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(logger.Entry{
		Action:     "http_server_shutdown_begin",
		Message:    "HTTP server shutdown initiated",
		Additional: map[string]any{"addr": s.addr},
	})

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error(logger.Entry{
			Action:     "http_server_shutdown_failed",
			Message:    "HTTP server shutdown failed",
			Error:      &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{"addr": s.addr},
		})
		return err
	}

	s.log.Info(logger.Entry{
		Action:     "http_server_shutdown_complete",
		Message:    "HTTP server stopped",
		Additional: map[string]any{"addr": s.addr},
	})
	return nil
}
