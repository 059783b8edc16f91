package pipeline

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// HandleImage validates classes, then annotates a still image.
//
// Arguments:
//   - ctx: The request context.
//   - up: The uploaded image; its body is not read if classes are invalid.
//   - classes: The raw comma-separated class list from the request.
//   - conf: The detection confidence threshold.
//
// Returns:
//   - *Result: An in-memory JPEG.
//   - error: A classified failure; see IsClientError.
func (p *Pipeline) HandleImage(ctx context.Context, up Upload, classes string, conf float32) (*Result, error) {
	keep, err := p.catalog.ParseFilter(classes)
	if err != nil {
		return nil, err
	}
	return p.AnnotateImage(ctx, up, keep, conf)
}

// AnnotateImage annotates a still image with already-parsed classes. The
// output has the same dimensions as the input and is JPEG encoded.
func (p *Pipeline) AnnotateImage(ctx context.Context, up Upload, keep models.Filter, conf float32) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.HandleImage")
	defer span.End()
	span.SetAttributes(attribute.String("upload.filename", up.Filename))

	res, err := p.annotateImage(ctx, up, keep, conf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Pipeline) annotateImage(ctx context.Context, up Upload, keep models.Filter, conf float32) (*Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx, p.log).With(zap.String("filename", up.Filename))

	if err := ValidateConfidence(conf); err != nil {
		return nil, err
	}
	ext, ok := images.IsSupported(images.KindImage, up.Filename)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMediaType, "%q is not an image upload (choices: %s)",
			ext, strings.Join(images.SupportedExtensions(images.KindImage), ", "))
	}

	data, err := io.ReadAll(limited(up.Body, p.cfg.MaxImageBytes))
	if err != nil {
		return nil, uploadError(err, "read image upload")
	}
	if p.cfg.MaxImageBytes > 0 && int64(len(data)) > p.cfg.MaxImageBytes {
		return nil, errors.Wrapf(ErrTooLarge, "image larger than %d bytes", p.cfg.MaxImageBytes)
	}

	prof := profiler.New()
	stop := prof.StartOperation("decode")
	img, err := images.Decode(data)
	stop()
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	defer img.Close()

	stop = prof.StartOperation("detect")
	boxes, err := p.annotator.Annotate(ctx, &img, keep, conf)
	stop()
	if err != nil {
		return nil, errors.Wrap(ErrDetection, err.Error())
	}

	stop = prof.StartOperation("encode")
	out, err := images.EncodeJPEG(img, p.cfg.JPEGQuality)
	stop()
	if err != nil {
		return nil, errors.Wrap(err, "encode annotated image")
	}

	log.Info("image done",
		zap.Int("width", img.Cols()),
		zap.Int("height", img.Rows()),
		zap.Int("boxes", boxes),
		zap.Float64("elapsed_ms", elapsedMS(start)),
		zap.Object("stages", prof),
	)

	return &Result{
		ContentType: "image/jpeg",
		Size:        int64(len(out)),
		Body:        io.NopCloser(bytes.NewReader(out)),
		Frames:      1,
	}, nil
}
