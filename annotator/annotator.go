// Package annotator - Draws the detections a request asked for onto a frame.
package annotator

import (
	"context"
	"fmt"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/metrics"
	"github.com/nvr-ai/go-detect/models"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Options controls how boxes are drawn.
type Options struct {
	// Thickness is the rectangle stroke width in pixels.
	Thickness int `yaml:"thickness" env:"THICKNESS"`
	// Labels draws "<name> <score>" above each box.
	Labels bool `yaml:"labels" env:"LABELS"`
}

// DefaultOptions returns unlabeled 3px outlines.
func DefaultOptions() Options {
	return Options{Thickness: images.DefaultStrokeWidth}
}

// Annotator runs a detector over an image and outlines the detections whose
// class a request kept.
type Annotator struct {
	detector inference.Detector
	catalog  *models.Catalog
	opts     Options
	log      *zap.Logger
}

// New creates an annotator.
//
// Arguments:
//   - detector: The shared detection capability.
//   - catalog: Maps class ids to names and colors.
//   - opts: Drawing options.
//   - log: The logger.
//
// Returns:
//   - *Annotator: The annotator.
func New(detector inference.Detector, catalog *models.Catalog, opts Options, log *zap.Logger) *Annotator {
	if opts.Thickness < 1 {
		opts.Thickness = images.DefaultStrokeWidth
	}
	return &Annotator{detector: detector, catalog: catalog, opts: opts, log: log}
}

// Catalog returns the class catalog boxes are colored from.
func (a *Annotator) Catalog() *models.Catalog { return a.catalog }

// Annotate detects objects in img and draws an unfilled rectangle, in the
// class color, for every detection whose class is in keep. Other detections
// are dropped. img is modified in place.
//
// Arguments:
//   - ctx: The request context, passed to the detector.
//   - img: The BGR image to draw on.
//   - keep: The classes to draw.
//   - conf: The confidence threshold, passed to the detector unchanged.
//
// Returns:
//   - int: The number of rectangles drawn.
//   - error: The detector error, if any; nothing is drawn in that case.
func (a *Annotator) Annotate(ctx context.Context, img *gocv.Mat, keep models.Filter, conf float32) (int, error) {
	detections, err := a.detector.Detect(ctx, img, conf)
	if err != nil {
		return 0, err
	}

	drawn := 0
	for _, d := range detections {
		if !keep.Contains(d.ClassID) {
			continue
		}
		c, ok := a.catalog.Color(d.ClassID)
		if !ok {
			a.log.Debug("detection class outside catalog", zap.Int("class_id", d.ClassID))
			continue
		}
		if !images.DrawBox(img, d.Box, c, a.opts.Thickness) {
			continue
		}

		name := a.catalog.Name(d.ClassID)
		if a.opts.Labels {
			images.DrawLabel(img, fmt.Sprintf("%s %.2f", name, d.Score), d.Box, c)
		}
		metrics.BoxesDrawnTotal.WithLabelValues(name).Inc()
		drawn++
	}

	return drawn, nil
}
