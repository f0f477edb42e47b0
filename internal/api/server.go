package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/config"
	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/record"
	"github.com/dharsanguruparan/styledrop/internal/service"
	"github.com/dharsanguruparan/styledrop/internal/signing"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

// Server exposes HTTP endpoints for attaching, inspecting and removing files
// on host records.
type Server struct {
	cfg      *config.Config
	svc      *service.Service
	signer   *signing.Signer
	gatherer prometheus.Gatherer
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a Server. A nil gatherer disables /metrics.
func New(cfg *config.Config, svc *service.Service, signer *signing.Signer, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		signer:   signer,
		gatherer: gatherer,
		log:      logging.OrNop(log),
		now:      time.Now,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET "+config.DownloadPath, s.handleDownload)
	mux.HandleFunc("POST /records/{type}/{id}/{attachment}", s.handleAssign)
	mux.HandleFunc("GET /records/{type}/{id}/{attachment}", s.handleShow)
	mux.HandleFunc("DELETE /records/{type}/{id}/{attachment}", s.handleDestroy)
	mux.HandleFunc("GET /records/{type}/{id}/{attachment}/expiring-url", s.handleExpiringURL)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.cfg.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// attachmentView is the JSON shape of an attachment.
type attachmentView struct {
	RecordType  string            `json:"record_type"`
	RecordID    string            `json:"record_id"`
	Attachment  string            `json:"attachment"`
	Status      string            `json:"status"`
	Ready       bool              `json:"ready"`
	ContentType string            `json:"content_type,omitempty"`
	Size        int64             `json:"size"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
	URLs        map[string]string `json:"urls,omitempty"`
}

func view(a *attachment.Attachment) attachmentView {
	v := attachmentView{
		RecordType: a.Host().RecordType(),
		RecordID:   a.Host().ID(),
		Attachment: a.Name(),
		Status:     a.Status().String(),
		Ready:      a.Ready(),
		Size:       a.Size(),
	}
	if !a.File() {
		return v
	}
	v.ContentType = a.ContentType(attachment.UploadStyle)
	if t := a.UpdatedAt(); !t.IsZero() {
		v.UpdatedAt = &t
	}
	v.URLs = map[string]string{}
	for _, st := range a.Styles() {
		v.URLs[st.Name] = a.URL(st.Name, true)
	}
	return v
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	upload, cleanup, err := s.persistPart(part)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	a, err := s.svc.Assign(r.Context(), r.PathValue("type"), r.PathValue("id"), r.PathValue("attachment"), upload)
	var invalid *service.ValidationError
	switch {
	case errors.As(err, &invalid):
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": invalid.Errors})
		return
	case err != nil:
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, view(a))
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	_, a, err := s.svc.Open(r.Context(), r.PathValue("type"), r.PathValue("id"), r.PathValue("attachment"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view(a))
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Destroy(r.Context(), r.PathValue("type"), r.PathValue("id"), r.PathValue("attachment")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExpiringURL(w http.ResponseWriter, r *http.Request) {
	_, a, err := s.svc.Open(r.Context(), r.PathValue("type"), r.PathValue("id"), r.PathValue("attachment"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !a.Ready() {
		http.Error(w, "attachment not stored", http.StatusConflict)
		return
	}
	style := r.URL.Query().Get("style")
	if style == "" {
		style = a.DefaultStyle()
	}
	ttl := s.cfg.SignedURLTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = parsed
	}
	u, err := a.ExpiringURL(r.Context(), style, ttl)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"url":     u,
		"expires": strconv.FormatInt(s.now().Add(ttl).Unix(), 10),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, expires, signature := q.Get("key"), q.Get("expires"), q.Get("signature")
	if key == "" || expires == "" || signature == "" {
		http.Error(w, "missing parameters", http.StatusBadRequest)
		return
	}
	if s.signer == nil || !s.signer.Verify(key, expires, signature, s.now()) {
		http.Error(w, "invalid or expired signature", http.StatusUnauthorized)
		return
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	f, err := os.Open(filepath.Join(s.cfg.StorageRoot, filepath.FromSlash(clean)))
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	name := path.Base(clean)
	w.Header().Set("Content-Type", attachment.ContentTypeFor(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// persistPart streams the part to a temp file, enforcing the upload limit.
// The returned cleanup removes the temp file.
func (s *Server) persistPart(part *multipart.Part) (attachment.Upload, func(), error) {
	defer part.Close()
	tmp, err := os.CreateTemp("", "styledrop-upload-*")
	if err != nil {
		return attachment.Upload{}, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	written, err := io.Copy(tmp, io.LimitReader(part, s.cfg.MaxUploadBytes+1))
	closeErr := tmp.Close()
	switch {
	case err != nil:
		cleanup()
		return attachment.Upload{}, nil, fmt.Errorf("read file: %w", err)
	case closeErr != nil:
		cleanup()
		return attachment.Upload{}, nil, fmt.Errorf("write temp file: %w", closeErr)
	case written > s.cfg.MaxUploadBytes:
		cleanup()
		return attachment.Upload{}, nil, fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxUploadBytes)
	case written == 0:
		cleanup()
		return attachment.Upload{}, nil, errors.New("empty file")
	}
	filename := filepath.Base(part.FileName())
	if filename == "." || filename == string(filepath.Separator) {
		filename = "upload"
	}
	contentType := part.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = attachment.ContentTypeFor(filename)
	}
	return attachment.Upload{
		Filename:    filename,
		ContentType: contentType,
		Size:        written,
		Source:      storage.FileSource(tmp.Name()),
	}, cleanup, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, record.ErrNotFound), errors.Is(err, service.ErrUnknownAttachment),
		errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrNoFile):
		status = http.StatusNotFound
	case errors.Is(err, attachment.ErrInvalidAssignment), errors.Is(err, service.ErrInvalidIdentifier):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrUnsupported):
		status = http.StatusNotImplemented
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
