package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"dedupe/internal/indexer"
	"dedupe/internal/storage"
)

// Index is the read side of the duplicate index exposed over HTTP.
type Index interface {
	Snapshot(ctx context.Context) ([]storage.DuplicateGroup, error)
	Status(ctx context.Context) (indexer.Status, error)
}

// Server exposes a read-only JSON report of the duplicate index. Nothing is
// deleted over HTTP; resolution stays with the interactive dedupe command.
type Server struct {
	index  Index
	logger *log.Logger
}

// New creates a Server instance backed by the provided index.
func New(idx Index, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{index: idx, logger: logger}
}

// Routes returns the HTTP handler that exposes the application endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/duplicates", s.handleDuplicates)
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

// Start runs the HTTP server until the provided context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("serving report", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		return <-served
	case err := <-served:
		return err
	}
}

type duplicatesResponse struct {
	Groups []storage.DuplicateGroup `json:"groups"`
	Files  int                      `json:"files"`
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	groups, err := s.index.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("snapshot failed", "error", err)
		http.Error(w, fmt.Sprintf("read index: %v", err), http.StatusInternalServerError)
		return
	}

	resp := duplicatesResponse{Groups: groups}
	if resp.Groups == nil {
		resp.Groups = []storage.DuplicateGroup{}
	}
	for _, group := range groups {
		resp.Files += len(group.Paths)
	}
	writeJSON(w, resp)
}

type statusResponse struct {
	indexer.Status
	LastScanSize string `json:"lastScanSize,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.index.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", "error", err)
		http.Error(w, fmt.Sprintf("read index: %v", err), http.StatusInternalServerError)
		return
	}

	resp := statusResponse{Status: status}
	if status.LastScan != nil {
		resp.LastScanSize = humanize.Bytes(uint64(status.LastScan.Bytes))
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}
