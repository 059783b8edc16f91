// Package api - HTTP surface of the detection service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/pipeline"
	"go.uber.org/zap"
)

// DefaultConfidence is used when a request omits the conf query parameter.
const DefaultConfidence float32 = 0.25

// copyBufferSize is the chunk size of streamed responses.
const copyBufferSize = 1 << 20

// multipartOverhead is allowed on top of the file size limit for part headers.
const multipartOverhead = 1 << 20

// Config bounds request bodies. Zero means no limit.
type Config struct {
	MaxImageBytes int64
	MaxVideoBytes int64
}

type annotateFunc func(ctx context.Context, up pipeline.Upload, keep models.Filter, conf float32) (*pipeline.Result, error)

// Handler serves detection requests.
type Handler struct {
	pipeline *pipeline.Pipeline
	cfg      Config
	log      *zap.Logger
	active   inFlight
}

// NewHandler creates a handler over p.
func NewHandler(p *pipeline.Pipeline, cfg Config, log *zap.Logger) *Handler {
	return &Handler{pipeline: p, cfg: cfg, log: log}
}

// Drain blocks until every request served through the router has returned,
// or ctx is done. Handlers only return early when their request context is
// cancelled, so callers cancel the server's base context before draining.
// Spools of a returned request are already removed.
func (h *Handler) Drain(ctx context.Context) error {
	return h.active.wait(ctx)
}

// DetectImage handles POST /detect/image/{classes}.
func (h *Handler) DetectImage(w http.ResponseWriter, r *http.Request) {
	h.detect(w, r, h.pipeline.AnnotateImage, h.cfg.MaxImageBytes)
}

// DetectVideo handles POST /detect/video/{classes}.
func (h *Handler) DetectVideo(w http.ResponseWriter, r *http.Request) {
	h.detect(w, r, h.pipeline.AnnotateVideo, h.cfg.MaxVideoBytes)
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request, annotate annotateFunc, limit int64) {
	log := logger.FromContext(r.Context(), h.log)

	// Classes and threshold are validated before any of the body is read.
	keep, err := h.pipeline.Catalog().ParseFilter(classesParam(r))
	if err != nil {
		h.fail(w, log, err)
		return
	}
	conf, err := confidenceParam(r)
	if err != nil {
		h.fail(w, log, err)
		return
	}

	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	part, err := filePart(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer part.Close()

	res, err := annotate(r.Context(), pipeline.Upload{Filename: part.FileName(), Body: bodyLimitReader{part}}, keep, conf)
	if err != nil {
		h.fail(w, log, err)
		return
	}
	// Closing the body deletes any spool even when the copy is aborted.
	defer res.Body.Close()

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, struct{ io.Reader }{res.Body}, buf); err != nil {
		log.Warn("response stream aborted", zap.Error(err))
	}
}

// Classes handles GET /classes.
func (h *Handler) Classes(w http.ResponseWriter, _ *http.Request) {
	type class struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}

	classes := h.pipeline.Catalog().Classes()
	out := make([]class, 0, len(classes))
	for _, c := range classes {
		out = append(out, class{
			ID:    c.Index,
			Name:  c.Name,
			Color: fmt.Sprintf("#%02x%02x%02x", c.Color.R, c.Color.G, c.Color.B),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"classes": out})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) fail(w http.ResponseWriter, log *zap.Logger, err error) {
	if pipeline.IsClientError(err) {
		log.Info("request rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// classesParam returns the path-decoded {classes} segment.
func classesParam(r *http.Request) string {
	raw := chi.URLParam(r, "classes")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func confidenceParam(r *http.Request) (float32, error) {
	s := r.URL.Query().Get("conf")
	if s == "" {
		return DefaultConfidence, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("conf %q is not a number: %w", s, pipeline.ErrInvalidConfidence)
	}
	conf := float32(v)
	if err := pipeline.ValidateConfidence(conf); err != nil {
		return 0, err
	}
	return conf, nil
}

// filePart advances the multipart stream to the "file" field.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("expected a multipart/form-data upload")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing file part")
		}
		if err != nil {
			return nil, fmt.Errorf("malformed multipart upload: %w", err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// bodyLimitReader reports an exceeded request body limit as
// pipeline.ErrTooLarge.
type bodyLimitReader struct{ r io.Reader }

func (b bodyLimitReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = fmt.Errorf("request body over %d bytes: %w", tooLarge.Limit, pipeline.ErrTooLarge)
	}
	return n, err
}
