// Package server exposes scanning over HTTP: POST /api/v1/scan runs a scan
// described by a configuration document and returns the scan response,
// GET /api/v1/history lists recorded scans, GET /metrics serves Prometheus
// metrics and GET /healthz reports liveness.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cagmero/ARGUS"
	"github.com/cagmero/ARGUS/internal/config"
	"github.com/cagmero/ARGUS/internal/history"
	"github.com/cagmero/ARGUS/internal/metrics"
	"github.com/cagmero/ARGUS/internal/scanner"
)

// maxBody bounds a scan request, inline files included.
const maxBody = 10 << 20

const shutdownGrace = 10 * time.Second

// serverOnly are configuration keys a request may not set. Each names an
// executable, a directory or a file on the server.
var serverOnly = []string{"analyzer_settings", "rules_dir", "history_db", "output_file"}

// ErrForbidden reports a scan request that reaches outside what the server
// configuration allows.
var ErrForbidden = errors.New("not allowed in a scan request")

// Server serves the scan API. Every request scans with its own copy of the
// base configuration and may only scan below the base target paths.
type Server struct {
	base    config.Config
	roots   []string
	metrics *metrics.Metrics
	history *history.Store
	logger  *zap.SugaredLogger
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithHistory records every scan in store and enables the history endpoint.
func WithHistory(store *history.Store) Option {
	return func(s *Server) { s.history = store }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a server whose requests start from base. m may be nil.
func New(base config.Config, m *metrics.Metrics, opts ...Option) *Server {
	if m == nil {
		m = metrics.New(nil)
	}
	s := &Server{base: base.Clone(), metrics: m, logger: zap.NewNop().Sugar(), mux: http.NewServeMux()}
	for _, o := range opts {
		o(s)
	}
	for _, p := range s.base.TargetPaths {
		s.roots = append(s.roots, resolve(p))
	}
	s.route("POST /api/v1/scan", "/api/v1/scan", http.HandlerFunc(s.handleScan))
	s.route("GET /api/v1/history", "/api/v1/history", http.HandlerFunc(s.handleHistory))
	s.route("GET /healthz", "/healthz", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("GET /metrics", m.Handler())
	return s
}

func (s *Server) route(pattern, path string, h http.Handler) {
	s.mux.Handle(pattern, s.metrics.Middleware(path, h))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Infow("serving scan API", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// InlineFile is a file sent in the request body instead of read from disk.
type InlineFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ScanRequest is the configuration document plus optional inline files.
// Keys left out keep the server's configuration. Keys naming server paths or
// commands are rejected.
type ScanRequest struct {
	config.Config
	Files []InlineFile `json:"files,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	req, err := s.decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sc, err := argus.NewScanner(
		argus.WithConfig(req.Config),
		argus.WithObserver(s.metrics),
		argus.WithLogger(s.logger),
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var result *argus.ScanResult
	if len(req.Files) > 0 {
		targets := make([]*scanner.Target, len(req.Files))
		for i, f := range req.Files {
			targets[i] = &scanner.Target{RelPath: f.Path, Content: []byte(f.Content)}
		}
		result, err = sc.ScanTargets(r.Context(), targets)
	} else {
		result, err = sc.Scan(r.Context(), req.TargetPaths...)
	}
	switch {
	case errors.Is(err, scanner.ErrNoTargets):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		s.logger.Warnw("scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if s.history != nil {
		if _, err := s.history.Record(r.Context(), result, time.Now()); err != nil {
			s.logger.Errorw("recording scan", "error", err)
		}
	}
	s.logger.Infow("scan finished",
		"target", result.Target,
		"files", result.Summary.FilesScanned,
		"vulnerabilities", result.Summary.TotalVulnerabilities,
		"errors", len(result.Errors))
	w.Header().Set("X-Argus-Exit-Code", strconv.Itoa(result.ExitCode()))
	writeJSON(w, http.StatusOK, result)
}

// decode applies a request body to a copy of the base configuration. Keys in
// serverOnly are rejected and target paths must lie below a served root.
func (s *Server) decode(body []byte) (ScanRequest, error) {
	req := ScanRequest{Config: s.base.Clone()}
	if len(body) == 0 {
		return req, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return req, fmt.Errorf("decoding scan request: %w", err)
	}
	for k := range keys {
		for _, forbidden := range serverOnly {
			// encoding/json matches field names case-insensitively
			if strings.EqualFold(k, forbidden) {
				return req, fmt.Errorf("%s: %w", forbidden, ErrForbidden)
			}
		}
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("decoding scan request: %w", err)
	}
	req.AnalyzerSettings = s.base.Clone().AnalyzerSettings
	req.RulesDir = s.base.RulesDir
	req.HistoryDB = s.base.HistoryDB
	req.OutputFile = s.base.OutputFile

	for i, f := range req.Files {
		if f.Path == "" {
			return req, fmt.Errorf("files[%d]: path is required", i)
		}
	}
	if len(req.Files) > 0 {
		return req, nil
	}
	if len(req.TargetPaths) == 0 {
		req.TargetPaths = append([]string(nil), s.base.TargetPaths...)
	}
	for _, p := range req.TargetPaths {
		if !s.served(p) {
			return req, fmt.Errorf("target path %q is outside the served roots: %w", p, ErrForbidden)
		}
	}
	return req, nil
}

// served reports whether p lies at or below one of the server's roots.
func (s *Server) served(p string) bool {
	target := resolve(p)
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, target)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// resolve returns the absolute form of p with symlinks evaluated when p
// exists.
func resolve(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if evaluated, err := filepath.EvalSymlinks(abs); err == nil {
		return evaluated
	}
	return abs
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("scan history is not enabled"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	scans, err := s.history.List(r.Context(), r.URL.Query().Get("target"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if scans == nil {
		scans = []history.Scan{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
