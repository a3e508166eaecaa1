// Package httpapi is the ops HTTP surface of a running plant.
//
// Every handler touches plant state only inside Executor.Do, so requests
// are serialized with monitors and other writers on the engine loop.
// Responses are encoded inside the task and written after it returns.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/meltshop/internal/metrics"
	"github.com/roach88/meltshop/internal/plant"
)

// Executor runs a task on the single-writer loop and waits for it.
// *engine.Engine and engine.Inline satisfy it.
type Executor interface {
	Do(ctx context.Context, name string, fn func() error) error
}

// Server routes ops requests to a plant.
type Server struct {
	plant    *plant.Plant
	exec     Executor
	metrics  *metrics.Metrics
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New builds the router. m may be nil, in which case /metrics is not
// served and requests are not counted.
func New(p *plant.Plant, exec Executor, m *metrics.Metrics) *Server {
	s := &Server{
		plant:   p,
		exec:    exec,
		metrics: m,
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	s.handle("/healthz", s.handleHealth, http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.handle("/machines", s.handleListMachines, http.MethodGet)
	s.handle("/machines/{name}", s.handleGetMachine, http.MethodGet)
	s.handle("/machines/{name}/load", s.handleLoad, http.MethodPost)
	s.handle("/machines/{name}/dispense", s.handleDispense, http.MethodPost)
	s.handle("/machines/{name}/weight", s.handleWeight, http.MethodGet)
	s.handle("/machines/{name}/sensors/{key}", s.handleMeasurements, http.MethodGet)

	s.handle("/sessions", s.handleListSessions, http.MethodGet)
	s.handle("/sessions", s.handleStartSession, http.MethodPost)
	s.handle("/sessions/{id}", s.handleGetSession, http.MethodGet)
	s.handle("/sessions/{id}", s.handleUpdateSession, http.MethodPatch)
	s.handle("/sessions/{id}/stop", s.handleStopSession, http.MethodPost)

	s.handle("/events", s.handleListEvents, http.MethodGet)
	s.handle("/events", s.handleCreateEvent, http.MethodPost)

	s.handle("/alerts", s.handleListAlerts, http.MethodGet)
	s.handle("/alerts/{id}/acknowledge", s.handleAcknowledge, http.MethodPost)

	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
}

func (s *Server) handle(path string, fn http.HandlerFunc, method string) {
	s.router.Handle(path, s.metrics.WrapHandler(path, fn)).Methods(method)
}

// Handler returns the router wrapped in panic recovery.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(s.router)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.CombinedLoggingHandler(os.Stderr, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "plant": s.plant.Name()})
}

// httpError carries a status through an engine task.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func notFound(format string, args ...any) error {
	return &httpError{status: http.StatusNotFound, message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// run executes fn on the engine and writes its encoded result, or the
// error it returned.
func (s *Server) run(w http.ResponseWriter, r *http.Request, name string, status int, fn func() (any, error)) {
	s.runStatus(w, r, name, status, func(*int) (any, error) { return fn() })
}

type taskResult struct {
	status int
	body   []byte
}

// runStatus is run with a status the task may change.
//
// The task owns its status and body and hands them back over out. A task
// dequeued after its request ended returns the context error untouched.
func (s *Server) runStatus(w http.ResponseWriter, r *http.Request, name string, status int, fn func(status *int) (any, error)) {
	ctx := r.Context()
	out := make(chan taskResult, 1)
	err := s.exec.Do(ctx, name, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := taskResult{status: status}
		v, err := fn(&res.status)
		if err != nil {
			return err
		}
		if res.body, err = json.Marshal(v); err != nil {
			return err
		}
		out <- res
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	res := <-out
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.status)
	_, _ = w.Write(append(res.body, '\n'))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var he *httpError
	switch {
	case errors.As(err, &he):
		status = he.status
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func parseTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, badRequest("invalid %s: %v", key, err)
	}
	return t, nil
}
