// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

// Package bridge exposes a controller session over HTTP: a WebSocket for
// commands, Prometheus metrics and a health probe.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lbrlab/sunlink/internal/log"
	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Controller is the part of a session the bridge drives.
// *extctl.Session implements it.
type Controller interface {
	GetState() (*extctl.Report, error)
	AppStart() (*extctl.Report, error)
	AppStop() (*extctl.Report, error)
	AppRestart() (*extctl.Report, error)
	AppEnable(report bool) (*extctl.Report, error)
	HeartbeatRunning() bool
	EnableSupported() bool
	Sequence() uint64
}

// Config configures the bridge server
type Config struct {
	// RateLimit is the number of HTTP requests each client IP, and WebSocket
	// messages each connection, may issue per RateWindow; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration

	// Metrics serves /metrics; promhttp.Handler() when nil
	Metrics http.Handler

	// Username and Password enable HTTP Basic auth on /ws and /metrics
	Username string
	Password string
}

const (
	maxMessageSize = 4096
	writeWait      = time.Second
)

// Server routes bridge requests to one controller session
type Server struct {
	ctl      Controller
	cfg      Config
	logger   zerolog.Logger
	router   *chi.Mux
	upgrader websocket.Upgrader
}

// New builds the router for ctl
func New(ctl Controller, cfg Config, logger zerolog.Logger) *Server {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}

	s := &Server{
		ctl:    ctl,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if cfg.RateLimit > 0 {
		r.Use(rateLimit(cfg.RateLimit, cfg.RateWindow))
	}
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		if cfg.Username != "" {
			r.Use(middleware.BasicAuth("sunlink", map[string]string{cfg.Username: cfg.Password}))
		}
		r.Get("/ws", s.handleWS)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	})
	s.router = r

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", addr).Msg("bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("bridge server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	return <-errCh
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}

type health struct {
	Status          string `json:"status"`
	Heartbeat       bool   `json:"heartbeat"`
	EnableSupported bool   `json:"enable_supported"`
	Sequence        uint64 `json:"sequence"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status:          "ok",
		Heartbeat:       s.ctl.HeartbeatRunning(),
		EnableSupported: s.ctl.EnableSupported(),
		Sequence:        s.ctl.Sequence(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	logger := s.logger.With().Str(log.FieldRemoteAddr, r.RemoteAddr).Logger()
	logger.Info().Msg("bridge client connected")

	limiter := s.messageLimiter()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if s.write(conn, Response{OK: false, Error: "invalid JSON", ErrorKind: KindInvalidOp}) != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("bridge client read failed")
			}
			logger.Info().Msg("bridge client disconnected")
			return
		}

		if limiter != nil && !limiter.Allow() {
			logger.Warn().Str(log.FieldOp, req.Op).Msg("bridge client rate limited")
			resp := Response{ID: req.ID, Op: req.Op, Error: "rate limit exceeded", ErrorKind: KindRateLimited}
			if s.write(conn, resp) != nil {
				return
			}
			continue
		}

		resp := s.dispatch(req)
		logger.Debug().Str(log.FieldOp, req.Op).Bool("ok", resp.OK).Str("error_kind", resp.ErrorKind).Msg("bridge request")
		if err := s.write(conn, resp); err != nil {
			logger.Warn().Err(err).Msg("bridge client write failed")
			return
		}
	}
}

// messageLimiter returns a token bucket allowing RateLimit messages per
// RateWindow with a burst of RateLimit, or nil when limiting is off
func (s *Server) messageLimiter() *rate.Limiter {
	if s.cfg.RateLimit <= 0 {
		return nil
	}
	every := rate.Limit(float64(s.cfg.RateLimit) / s.cfg.RateWindow.Seconds())
	return rate.NewLimiter(every, s.cfg.RateLimit)
}

func (s *Server) write(conn *websocket.Conn, resp Response) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(resp)
}

// dispatch runs one request against the controller
func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID, Op: req.Op}

	var (
		report *extctl.Report
		err    error
	)
	switch req.Op {
	case OpGetState:
		report, err = s.ctl.GetState()
	case OpStart:
		report, err = s.ctl.AppStart()
	case OpStop:
		report, err = s.ctl.AppStop()
	case OpRestart:
		report, err = s.ctl.AppRestart()
	case OpEnable:
		report, err = s.ctl.AppEnable(req.Report)
	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
		resp.ErrorKind = KindInvalidOp
		return resp
	}

	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = errorKind(err)
		return resp
	}

	resp.OK = true
	if report != nil {
		resp.Report = NewReportView(report)
	}
	return resp
}
