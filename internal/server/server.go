// Package server exposes document conversion and streamed page generation
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arin/doc2html/internal/ai"
	"github.com/arin/doc2html/internal/ingest"
	"github.com/arin/doc2html/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	maxUpload       = 32 << 20
	shutdownTimeout = 5 * time.Second
)

// Generator is the part of ai.Generator the server needs.
type Generator interface {
	Generate(ctx context.Context, req ai.Request, obs ai.ProgressObserver) (*ai.Result, error)
}

// Run describes one finished /api/generate request.
type Run struct {
	Request ai.Request
	Result  *ai.Result // nil on failure
	Err     error
	Elapsed time.Duration
}

// Config is the fixed per-server request configuration.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Pages    store.Dir

	// OnRun, when set, is called after every generation.
	OnRun func(Run)
}

type Server struct {
	gen Generator
	cfg Config
	log logrus.FieldLogger
}

// New returns a server generating pages with gen.
func New(gen Generator, cfg Config, log logrus.FieldLogger) (*Server, error) {
	if gen == nil {
		return nil, errors.New("generator required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{gen: gen, cfg: cfg, log: log}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("GET /uploads/{name}", s.handleUpload)
	mux.HandleFunc("GET /"+ai.TemplateName, s.handleTemplate)
	return logMiddleware(s.log, mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

// --- Handlers ---

type convertResp struct {
	HTML string `json:"html"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		doc *ingest.Document
		err error
	)
	if f, hdr, ferr := r.FormFile("file"); ferr == nil {
		defer f.Close()
		doc, err = ingest.FromReader(hdr.Filename, f)
	} else {
		doc, err = ingest.FromText(r.FormValue("text"))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	preview, err := doc.HTML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResp{HTML: preview})
}

type generateReq struct {
	Content string `json:"content"`
}

type progressEvent struct {
	Delta  string `json:"delta"`
	Length int    `json:"length"`
}

type doneEvent struct {
	HTML     string `json:"html"`
	Attempts int    `json:"attempts"`
	Complete bool   `json:"complete"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// handleGenerate streams progress events while the page is generated, then
// a final done or error event.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpload)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Content == "" {
		writeError(w, http.StatusBadRequest, ingest.ErrEmpty)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	req := ai.Request{
		Content:  body.Content,
		APIKey:   s.cfg.APIKey,
		Model:    s.cfg.Model,
		Endpoint: s.cfg.Endpoint,
	}
	obs := ai.ObserverFunc(func(delta, total string) {
		writeEvent(w, "progress", progressEvent{Delta: delta, Length: len(total)})
		flusher.Flush()
	})

	start := time.Now()
	res, err := s.gen.Generate(r.Context(), req, obs)
	if s.cfg.OnRun != nil {
		s.cfg.OnRun(Run{Request: req, Result: res, Err: err, Elapsed: time.Since(start)})
	}

	if err != nil {
		s.log.WithError(err).Warn("generation failed")
		writeEvent(w, "error", errorEvent{Error: err.Error()})
	} else {
		writeEvent(w, "done", doneEvent{HTML: res.HTML, Attempts: res.Attempts, Complete: res.Complete})
	}
	flusher.Flush()
}

type saveReq struct {
	HTML string `json:"html"`
}

type saveResp struct {
	URL string `json:"url"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var body saveReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpload)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.HTML == "" {
		writeError(w, http.StatusBadRequest, errors.New("html is required"))
		return
	}

	name, err := s.cfg.Pages.Save(body.HTML)
	if err != nil {
		s.log.WithError(err).Error("failed to save page")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResp{URL: "/uploads/" + name})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	path, err := s.cfg.Pages.Path(r.PathValue("name"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(ai.DefaultTemplate()))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorEvent{Error: err.Error()})
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
