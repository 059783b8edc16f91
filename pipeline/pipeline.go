// Package pipeline - Request-scoped image and video annotation.
//
// Both pipelines validate the requested classes before reading any upload
// bytes. The image pipeline works in memory. The video pipeline spools the
// upload and the annotated output to disk, and hands the output back as a
// stream that deletes both files once it is consumed or closed.
package pipeline

import (
	"io"
	"time"

	"github.com/nvr-ai/go-detect/annotator"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/nvr-ai/go-detect/pipeline")

// Config tunes both pipelines.
type Config struct {
	// SpoolDir holds video spools. Empty uses the OS temp dir.
	SpoolDir string
	// DefaultFPS is used when a video reports no usable frame rate.
	DefaultFPS float64
	// Codec is the FourCC of the output video.
	Codec string
	// FrameBuffer is the number of decoded frames queued ahead of annotation.
	FrameBuffer int
	// ProgressEvery logs progress every N frames.
	ProgressEvery int
	// MaxImageBytes and MaxVideoBytes bound upload sizes. Zero means no limit.
	MaxImageBytes int64
	MaxVideoBytes int64
	// JPEGQuality is the quality of annotated images.
	JPEGQuality int
}

// DefaultConfig returns 24 fps mp4v output and generous upload limits.
func DefaultConfig() Config {
	return Config{
		DefaultFPS:    24,
		Codec:         "mp4v",
		FrameBuffer:   4,
		ProgressEvery: 10,
		MaxImageBytes: 32 << 20,
		MaxVideoBytes: 2 << 30,
		JPEGQuality:   images.DefaultJPEGQuality,
	}
}

// Upload is a file received from a client. Body is read at most once.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Result is an annotated file ready to be sent. The caller must Close Body.
type Result struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
	// Frames is the number of frames written; 1 for images.
	Frames int
}

// Pipeline runs uploads through an annotator.
type Pipeline struct {
	cfg       Config
	catalog   *models.Catalog
	annotator *annotator.Annotator
	log       *zap.Logger
}

// New creates a pipeline. Zero fields in cfg take their defaults.
//
// Arguments:
//   - cfg: The pipeline configuration.
//   - catalog: Resolves requested class names.
//   - a: Draws detections on each image or frame.
//   - log: The fallback logger when a request context carries none.
//
// Returns:
//   - *Pipeline: The pipeline.
func New(cfg Config, catalog *models.Catalog, a *annotator.Annotator, log *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = def.DefaultFPS
	}
	if cfg.Codec == "" {
		cfg.Codec = def.Codec
	}
	if cfg.FrameBuffer < 1 {
		cfg.FrameBuffer = def.FrameBuffer
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	return &Pipeline{cfg: cfg, catalog: catalog, annotator: a, log: log}
}

// Catalog returns the catalog requested classes are resolved against.
func (p *Pipeline) Catalog() *models.Catalog { return p.catalog }

// limited reads at most limit bytes from r and one more to detect overflow.
func limited(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return io.LimitReader(r, limit+1)
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
