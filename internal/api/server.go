// Package api exposes the compile service over HTTP and forwards requests
// for remote compilers to the server that hosts them.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"asmexplorer/internal/asm"
	"asmexplorer/internal/compiler"
	"asmexplorer/internal/logging"
	"asmexplorer/internal/service"
)

// DefaultMaxBodyBytes bounds a compile request body.
const DefaultMaxBodyBytes = 1 << 20

const internalErrorPrefix = "Internal compiler explorer error: "

// Options configures the HTTP layer.
type Options struct {
	MaxBodyBytes int64
	// ProxyTimeout bounds a forwarded request. Zero means no bound.
	ProxyTimeout time.Duration
}

// Server routes HTTP requests to the service.
type Server struct {
	svc     *service.Service
	proxies *proxyPool
	mux     *http.ServeMux
	maxBody int64
}

// NewServer builds the HTTP handler tree.
func NewServer(svc *service.Service, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		svc:     svc,
		proxies: newProxyPool(opts.ProxyTimeout),
		mux:     http.NewServeMux(),
		maxBody: opts.MaxBodyBytes,
	}
	s.mux.HandleFunc("POST /compile", s.handleCompile)
	s.mux.HandleFunc("POST /api/compiler/{id}/compile", s.handleCompile)
	s.mux.HandleFunc("GET /api/compilers", s.handleCompilers)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// compileBody is the JSON body of a compile request. Options is a single
// shell-quoted string.
type compileBody struct {
	Compiler string      `json:"compiler"`
	Source   *string     `json:"source"`
	Options  string      `json:"options"`
	Filters  asm.Filters `json:"filters"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id != "" {
		if remote, ok := s.svc.Remote(id); ok {
			s.proxies.forward(w, r, remote)
			return
		}
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	var body compileBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Source == nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if id == "" {
		id = body.Compiler
	}

	if _, ok := s.svc.Lookup(id); !ok {
		http.Error(w, fmt.Sprintf("Unknown compiler %q", id), http.StatusNotFound)
		return
	}
	if remote, ok := s.svc.Remote(id); ok {
		r.Body = io.NopCloser(bytes.NewReader(raw))
		r.ContentLength = int64(len(raw))
		s.proxies.forward(w, r, remote)
		return
	}

	options, err := shellwords.Parse(body.Options)
	if err != nil {
		writeError(w, compiler.ValidationError(fmt.Sprintf("Unable to parse options: %v", err)))
		return
	}

	res, err := s.svc.Submit(r.Context(), compiler.Request{
		CompilerID: id,
		Source:     *body.Source,
		Options:    options,
		Filters:    body.Filters,
	})
	if errors.Is(err, service.ErrUnknownCompiler) {
		http.Error(w, fmt.Sprintf("Unknown compiler %q", id), http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompilers(w http.ResponseWriter, r *http.Request) {
	descs := s.svc.Compilers()
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, descs)
		return
	}

	width := len("Compiler Name")
	for _, d := range descs {
		width = max(width, len(d.ID))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s | %s\n", width, "Compiler Name", "Description")
	for _, d := range descs {
		fmt.Fprintf(&b, "%-*s | %s\n", width, d.ID, d.DisplayName())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, b.String())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats(r.Context()))
}

// errorBody is the envelope for a failed compile. It is sent with HTTP 200
// so that clients render it like any other compiler output.
type errorBody struct {
	Code   int                   `json:"code"`
	Stderr []compiler.OutputLine `json:"stderr"`
}

func writeError(w http.ResponseWriter, err error) {
	text := err.Error()
	if !compiler.IsValidation(err) {
		text = internalErrorPrefix + text
		logging.APIError("Compile failed: %v", err)
	}
	writeJSON(w, http.StatusOK, errorBody{
		Code:   -1,
		Stderr: []compiler.OutputLine{{Text: text}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.APIDebug("Failed to write response: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.APIDebug("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
