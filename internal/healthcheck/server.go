// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.


// Package healthcheck serves liveness and readiness probes for the
// long-running commands.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

type Response struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`
}

// Report is served on /status and describes the change-feed publisher.
type Report struct {
	Status        string     `json:"status"`
	Ready         bool       `json:"ready"`
	NextEventID   int64      `json:"nextEventId,omitempty"`
	LastPublished *time.Time `json:"lastPublished,omitempty"`
}

type Config struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Port:    8090,
	}
}

type Server struct {
	port          int
	status        atomic.Int32
	ready         atomic.Bool
	nextEventID   atomic.Int64
	lastPublished atomic.Int64
	router        *chi.Mux
	server        *http.Server
	now           func() time.Time
}

func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultConfig().Port
	}

	s := &Server{
		port:   config.Port,
		router: chi.NewRouter(),
		now:    time.Now,
	}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.healthzHandler)
	s.router.Get("/readyz", s.readyzHandler)
	s.router.Get("/livez", s.livezHandler)
	s.router.Get("/status", s.statusHandler)
	return s
}

// Handler exposes the probe routes.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	slog.Debug("Ready status updated", slog.Bool("ready", ready))
}

// RecordProgress notes the next change-feed id after a published page.
func (s *Server) RecordProgress(next int64) {
	s.nextEventID.Store(next)
	s.lastPublished.Store(s.now().UnixNano())
}

// IsReady is true once SetReady(true) was called and the server is not
// unhealthy.
func (s *Server) IsReady() bool {
	return s.ready.Load() && s.GetStatus() != StatusUnhealthy
}

// Start serves until ctx is done, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health check listen: %w", err)
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("Starting health check server", slog.Int("port", s.port))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health check server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.GetStatus() == StatusHealthy, s.GetStatus())
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.IsReady(), s.GetStatus())
}

func (s *Server) livezHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.GetStatus() != StatusUnhealthy, s.GetStatus())
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	report := Report{
		Status:      s.GetStatus().String(),
		Ready:       s.IsReady(),
		NextEventID: s.nextEventID.Load(),
	}
	if ns := s.lastPublished.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		report.LastPublished = &t
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		slog.Error("Failed to encode status report", slog.Any("error", err))
	}
}

func writeProbe(w http.ResponseWriter, ok bool, status Status) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(Response{Healthy: ok, Status: status.String()}); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
