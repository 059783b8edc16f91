package pipeline

import (
	"context"
	"image"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/metrics"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/spool"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// HandleVideo validates classes, then annotates every frame of a video.
//
// Arguments:
//   - ctx: The request context; cancelling it stops the frame loop.
//   - up: The uploaded video; its body is not read if classes are invalid.
//   - classes: The raw comma-separated class list from the request.
//   - conf: The detection confidence threshold.
//
// Returns:
//   - *Result: An MP4 streamed from disk. Reading it to the end or closing it
//     deletes every temporary file the request created.
//   - error: A classified failure; see IsClientError. No temporary file
//     survives a failed call.
func (p *Pipeline) HandleVideo(ctx context.Context, up Upload, classes string, conf float32) (*Result, error) {
	keep, err := p.catalog.ParseFilter(classes)
	if err != nil {
		return nil, err
	}
	return p.AnnotateVideo(ctx, up, keep, conf)
}

// AnnotateVideo annotates a video with already-parsed classes. Frames are
// written in input order, one output frame per decoded input frame.
func (p *Pipeline) AnnotateVideo(ctx context.Context, up Upload, keep models.Filter, conf float32) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.HandleVideo")
	defer span.End()
	span.SetAttributes(attribute.String("upload.filename", up.Filename))

	res, err := p.annotateVideo(ctx, up, keep, conf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("video.frames", res.Frames))
	return res, nil
}

func (p *Pipeline) annotateVideo(ctx context.Context, up Upload, keep models.Filter, conf float32) (*Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx, p.log).With(zap.String("filename", up.Filename))

	if err := ValidateConfidence(conf); err != nil {
		return nil, err
	}
	ext, ok := images.IsSupported(images.KindVideo, up.Filename)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMediaType, "%q is not a video upload (choices: %s)",
			ext, strings.Join(images.SupportedExtensions(images.KindVideo), ", "))
	}

	scope := spool.NewScope(p.cfg.SpoolDir, log)
	streaming := false
	defer func() {
		if !streaming {
			scope.Release()
		}
	}()

	in, err := p.spoolUpload(scope, up.Body, ext)
	if err != nil {
		return nil, err
	}

	src, err := openSource(in.Path(), p.cfg.DefaultFPS)
	if err != nil {
		log.Info("video rejected", zap.Error(err))
		return nil, err
	}
	defer src.Close()

	out, err := scope.Create("out-*.mp4")
	if err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	if err := out.CloseFile(); err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}

	writer, err := gocv.VideoWriterFile(out.Path(), p.cfg.Codec, src.fps, src.width, src.height, true)
	if err != nil {
		return nil, errors.Wrap(ErrIO, "open video encoder: "+err.Error())
	}
	writerOpen := true
	defer func() {
		if writerOpen {
			writer.Close()
		}
	}()
	if !writer.IsOpened() {
		return nil, errors.Wrapf(ErrIO, "video encoder %s unavailable", p.cfg.Codec)
	}

	log.Debug("video opened",
		zap.Float64("fps", src.fps),
		zap.Int("width", src.width),
		zap.Int("height", src.height),
	)

	prof := profiler.New()
	frames, err := p.frameLoop(ctx, src, writer, keep, conf, prof, log)
	if err != nil {
		log.Warn("video failed", zap.Int("frames", frames), zap.Error(err))
		return nil, err
	}

	// Flush the encoder before the output is read back.
	writerOpen = false
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(ErrIO, "finalize video: "+err.Error())
	}
	src.Close()

	stream, err := scope.Stream(out)
	if err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	streaming = true

	log.Info("video done",
		zap.Int("frames", frames),
		zap.Float64("fps", src.fps),
		zap.Int64("bytes", stream.Size()),
		zap.Float64("elapsed_ms", elapsedMS(start)),
		zap.Object("stages", prof),
	)

	return &Result{
		ContentType: "video/mp4",
		Size:        stream.Size(),
		Body:        stream,
		Frames:      frames,
	}, nil
}

// spoolUpload copies the upload to a new spool and closes it.
func (p *Pipeline) spoolUpload(scope *spool.Scope, body io.Reader, ext string) (*spool.Spool, error) {
	in, err := scope.Create("in-*." + ext)
	if err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}

	n, err := io.Copy(in.File(), limited(body, p.cfg.MaxVideoBytes))
	if err != nil {
		return nil, uploadError(err, "spool video upload")
	}
	if p.cfg.MaxVideoBytes > 0 && n > p.cfg.MaxVideoBytes {
		return nil, errors.Wrapf(ErrTooLarge, "video larger than %d bytes", p.cfg.MaxVideoBytes)
	}
	if err := in.CloseFile(); err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return in, nil
}

// source is an opened, sampled and rewound video decoder.
type source struct {
	capture *gocv.VideoCapture
	fps     float64
	width   int
	height  int
}

// openSource opens path, reads its stream metadata and decodes one frame.
// The decoder is left positioned at the first frame.
func openSource(path string, defaultFPS float64) (*source, error) {
	capture, err := openCapture(path)
	if err != nil {
		return nil, err
	}

	src := &source{
		capture: capture,
		fps:     frameRate(capture.Get(gocv.VideoCaptureFPS), defaultFPS),
		width:   int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}

	first := gocv.NewMat()
	defer first.Close()
	if !capture.Read(&first) || first.Empty() {
		src.Close()
		return nil, ErrNoDecodableFrames
	}
	if src.width <= 0 || src.height <= 0 {
		src.width, src.height = first.Cols(), first.Rows()
	}

	capture.Set(gocv.VideoCapturePosFrames, 0)
	if capture.Get(gocv.VideoCapturePosFrames) != 0 {
		// Not seekable; start over from a fresh decoder.
		capture.Close()
		src.capture = nil
		if src.capture, err = openCapture(path); err != nil {
			return nil, err
		}
	}

	return src, nil
}

// frameRate returns the container's reported rate, or def when the container
// reports none (zero, negative, NaN or infinite).
func frameRate(reported, def float64) float64 {
	if reported <= 0 || math.IsNaN(reported) || math.IsInf(reported, 0) {
		return def
	}
	return reported
}

func openCapture(path string) (*gocv.VideoCapture, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if capture != nil {
			capture.Close()
		}
		return nil, errors.Wrap(ErrUnsupportedCodec, err.Error())
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Wrapf(ErrUnsupportedCodec, "cannot open %s", filepath.Base(path))
	}
	return capture, nil
}

// Close releases the decoder. It is safe to call more than once.
func (s *source) Close() {
	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
}

// frame is one decoded picture and its position in the input.
type frame struct {
	index int
	mat   gocv.Mat
}

// frameLoop decodes frames on a separate goroutine and annotates and encodes
// them on the calling goroutine in the order they were decoded.
func (p *Pipeline) frameLoop(
	ctx context.Context,
	src *source,
	writer *gocv.VideoWriter,
	keep models.Filter,
	conf float32,
	prof *profiler.Profiler,
	log *zap.Logger,
) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	frames := make(chan frame, p.cfg.FrameBuffer)

	go func() {
		defer close(frames)
		for i := 0; ; i++ {
			mat := gocv.NewMat()
			stop := prof.StartOperation("decode")
			ok := src.capture.Read(&mat)
			stop()
			if !ok || mat.Empty() {
				mat.Close()
				return
			}
			select {
			case frames <- frame{index: i, mat: mat}:
			case <-ctx.Done():
				mat.Close()
				return
			}
		}
	}()

	// Stop the decoder and wait for it before the capture can be closed.
	defer func() {
		cancel()
		for f := range frames {
			f.mat.Close()
		}
	}()

	size := image.Pt(src.width, src.height)
	count := 0
	for f := range frames {
		err := p.writeFrame(ctx, f, writer, size, keep, conf, prof)
		f.mat.Close()
		if err != nil {
			return count, err
		}

		count++
		metrics.FramesProcessedTotal.Inc()
		if count%p.cfg.ProgressEvery == 0 {
			log.Debug("video progress", zap.Int("frames", count))
		}
	}

	if err := ctx.Err(); err != nil {
		return count, errors.Wrap(err, "video processing cancelled")
	}
	if count == 0 {
		return 0, ErrNoDecodableFrames
	}
	return count, nil
}

func (p *Pipeline) writeFrame(
	ctx context.Context,
	f frame,
	writer *gocv.VideoWriter,
	size image.Point,
	keep models.Filter,
	conf float32,
	prof *profiler.Profiler,
) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "video processing cancelled at frame %d", f.index)
	}

	stop := prof.StartOperation("detect")
	_, err := p.annotator.Annotate(ctx, &f.mat, keep, conf)
	stop()
	if err != nil {
		return errors.Wrapf(ErrDetection, "frame %d: %v", f.index, err)
	}

	out := f.mat
	if f.mat.Cols() != size.X || f.mat.Rows() != size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(f.mat, &resized, size, 0, 0, gocv.InterpolationLinear)
		out = resized
	}

	defer prof.StartOperation("write")()
	if err := writer.Write(out); err != nil {
		return errors.Wrapf(ErrIO, "encode frame %d: %v", f.index, err)
	}
	return nil
}
