// Package server exposes kernels over HTTP.
//
// Endpoints:
//
//	POST   /kernels                     start a kernel, returns {"kernel_id":"..."}
//	GET    /kernels/{id}/info           kernel_info_reply
//	POST   /kernels/{id}/execute        run code, returns the reply and its streams
//	POST   /kernels/{id}/complete       complete_reply
//	POST   /kernels/{id}/inspect        501
//	POST   /kernels/{id}/is_complete    501
//	POST   /kernels/{id}/comm_info      501
//	POST   /kernels/{id}/input          501
//	DELETE /kernels/{id}                dispose a kernel
//	GET    /health                      health check
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/caffeineduck/wasmkernel/kernel"
)

// Server routes HTTP requests to managed kernels.
type Server struct {
	manager        *Manager
	logger         *slog.Logger
	bootTimeout    time.Duration
	executeTimeout time.Duration
	mux            *http.ServeMux
}

type Option func(*Server)

// WithBootTimeout bounds kernel creation.
func WithBootTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.bootTimeout = d
	}
}

// WithExecuteTimeout sets the default execution timeout. Requests may
// override it.
func WithExecuteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.executeTimeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Server over m.
func New(m *Manager, opts ...Option) *Server {
	s := &Server{
		manager:        m,
		logger:         slog.New(slog.DiscardHandler),
		bootTimeout:    2 * time.Minute,
		executeTimeout: 30 * time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /kernels", s.handleCreate)
	s.mux.HandleFunc("GET /kernels/{id}/info", s.handleInfo)
	s.mux.HandleFunc("POST /kernels/{id}/execute", s.handleExecute)
	s.mux.HandleFunc("POST /kernels/{id}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /kernels/{id}/inspect", s.handleUnsupported(func(ctx context.Context, k *kernel.Kernel) error {
		_, err := k.Inspect(ctx, kernel.InspectRequest{})
		return err
	}))
	s.mux.HandleFunc("POST /kernels/{id}/is_complete", s.handleUnsupported(func(ctx context.Context, k *kernel.Kernel) error {
		_, err := k.IsComplete(ctx, kernel.IsCompleteRequest{})
		return err
	}))
	s.mux.HandleFunc("POST /kernels/{id}/comm_info", s.handleUnsupported(func(ctx context.Context, k *kernel.Kernel) error {
		_, err := k.CommInfo(ctx, kernel.CommInfoRequest{})
		return err
	}))
	s.mux.HandleFunc("POST /kernels/{id}/input", s.handleUnsupported(func(ctx context.Context, k *kernel.Kernel) error {
		return k.Input(ctx, kernel.InputRequest{})
	}))
	s.mux.HandleFunc("DELETE /kernels/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down and
// disposes every kernel.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		s.manager.CloseAll()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.manager.CloseAll()
	return err
}

type createKernelResponse struct {
	KernelID string `json:"kernel_id"`
}

type executeRequest struct {
	Code    string `json:"code"`
	Silent  bool   `json:"silent,omitempty"`
	Session string `json:"session,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type executeResponse struct {
	Status         string          `json:"status"`
	MsgID          string          `json:"msg_id"`
	ExecutionCount int             `json:"execution_count"`
	Data           map[string]any  `json:"data"`
	Metadata       map[string]any  `json:"metadata"`
	EName          string          `json:"ename,omitempty"`
	EValue         string          `json:"evalue,omitempty"`
	Traceback      []string        `json:"traceback,omitempty"`
	Streams        []kernel.Stream `json:"streams"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.bootTimeout)
	defer cancel()

	id, err := s.manager.Create(ctx)
	if err != nil {
		s.logger.Warn("kernel creation failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, fmt.Sprintf("failed to create kernel: %v", err), status)
		return
	}

	writeJSON(w, http.StatusCreated, createKernelResponse{KernelID: id})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	mk, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mk.kernel.KernelInfo())
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	mk, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	timeout := s.executeTimeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			http.Error(w, "invalid timeout", http.StatusBadRequest)
			return
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	session := req.Session
	if session == "" {
		session = mk.kernel.ID()
	}
	header := kernel.NewHeader("execute_request", session)

	release := s.manager.hold(mk)
	mk.streams.begin(header.MsgID)
	reply, err := mk.kernel.Execute(ctx, kernel.ExecuteRequest{
		Code:   req.Code,
		Silent: req.Silent,
		Header: header,
	})
	streams := mk.streams.end(header.MsgID)
	release()

	resp := executeResponse{MsgID: header.MsgID, Streams: streams}

	var execErr *kernel.ExecutionError
	switch {
	case err == nil:
		resp.Status = "ok"
		resp.ExecutionCount = reply.ExecutionCount
		resp.Data = reply.Data
		resp.Metadata = reply.Metadata
	case errors.As(err, &execErr):
		resp.Status = "error"
		resp.EName = execErr.Name
		resp.EValue = execErr.Message
		resp.Traceback = execErr.Traceback()
	case errors.Is(err, kernel.ErrWorkerExited), errors.Is(err, kernel.ErrDisposed):
		s.manager.Close(mk.kernel.ID())
		http.Error(w, err.Error(), http.StatusGone)
		return
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "execution timed out", http.StatusGatewayTimeout)
		return
	default:
		s.logger.Error("execute failed", "kernel_id", mk.kernel.ID(), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	mk, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req kernel.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	reply, err := mk.kernel.Complete(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleUnsupported(call func(context.Context, *kernel.Kernel) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mk, ok := s.lookup(w, r)
		if !ok {
			return
		}

		err := call(r.Context(), mk.kernel)
		if errors.Is(err, kernel.ErrNotImplemented) {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.manager.Close(r.PathValue("id")) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Error(w, "kernel not found", http.StatusNotFound)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*managedKernel, bool) {
	mk, ok := s.manager.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "kernel not found", http.StatusNotFound)
	}
	return mk, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
