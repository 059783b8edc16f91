package detectors

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ONNXDetector runs a YOLOv8 model through ONNX Runtime.
//
// A single session is shared by all callers; Detect serializes access to it.
type ONNXDetector struct {
	mu      sync.Mutex
	session *inference.Session
	cfg     Config
	anchors int
	log     *zap.Logger
}

var _ inference.Detector = (*ONNXDetector)(nil)

// NewONNXDetector loads the model and prepares its session.
//
// Arguments:
//   - cfg: The detector configuration.
//   - log: The logger.
//
// Returns:
//   - *ONNXDetector: The detector; Close releases it.
//   - error: An error if the configuration is invalid or the model cannot be loaded.
func NewONNXDetector(cfg Config, log *zap.Logger) (*ONNXDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}

	libPath := providers.GetSharedLibPath(cfg.SharedLibPath)
	if err := inference.InitEnvironment(libPath); err != nil {
		return nil, err
	}

	anchors := Anchors(cfg.InputSize)
	size := int64(cfg.InputSize)
	session, err := inference.NewSession(inference.SessionArgs{
		ModelPath:   cfg.ModelPath,
		InputName:   cfg.InputName,
		OutputName:  cfg.OutputName,
		InputShape:  ort.NewShape(1, 3, size, size),
		OutputShape: ort.NewShape(1, int64(4+cfg.NumClasses), int64(anchors)),
		Provider:    cfg.Provider,
	})
	if err != nil {
		return nil, err
	}

	log.Info("onnx detector loaded",
		zap.String("model", cfg.ModelPath),
		zap.String("backend", string(cfg.Provider.Backend)),
		zap.Int("input_size", cfg.InputSize),
		zap.Int("classes", cfg.NumClasses),
	)

	return &ONNXDetector{session: session, cfg: cfg, anchors: anchors, log: log}, nil
}

// Detect runs inference on img and returns detections scoring at least conf.
//
// Arguments:
//   - ctx: Checked before inference starts.
//   - img: A BGR image; it is not modified.
//   - conf: The confidence threshold.
//
// Returns:
//   - []inference.Detection: The detections after NMS, highest score first.
//   - error: An error if the image is empty or inference fails.
func (d *ONNXDetector) Detect(ctx context.Context, img *gocv.Mat, conf float32) ([]inference.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Empty() {
		return nil, errors.New("cannot detect on an empty image")
	}

	rgb, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert frame")
	}
	width, height := img.Cols(), img.Rows()

	start := time.Now()
	candidates, err := d.run(rgb, width, height, conf)
	if err != nil {
		return nil, err
	}
	kept := postprocess.ApplyGreedyNMS(candidates, &d.cfg.NMS)

	d.log.Debug("inference complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("candidates", len(candidates)),
		zap.Int("detections", len(kept)),
	)

	detections := make([]inference.Detection, 0, len(kept))
	for _, r := range kept {
		detections = append(detections, inference.Detection{
			ClassID: r.Class,
			Box:     r.Box.ToRectangle(),
			Score:   r.Score,
		})
	}
	return detections, nil
}

func (d *ONNXDetector) run(rgb image.Image, width, height int, conf float32) ([]postprocess.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}
	lb, err := inference.PrepareInput(rgb, d.session.Input, d.cfg.InputSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	return DecodeYOLO(d.session.Output.GetData(), d.cfg.NumClasses, d.anchors, lb, width, height, conf), nil
}

// WarmUp runs inference on a blank frame to prime the session.
//
// Arguments:
//   - runs: The number of times to run inference.
//
// Returns:
//   - error: An error if the warmup fails.
func (d *ONNXDetector) WarmUp(runs int) error {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), d.cfg.InputSize, d.cfg.InputSize, gocv.MatTypeCV8UC3)
	defer blank.Close()

	for i := 0; i < runs; i++ {
		if _, err := d.Detect(context.Background(), &blank, 1); err != nil {
			return errors.Wrapf(err, "warmup run %d", i)
		}
	}
	return nil
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		d.session.Close()
		d.session = nil
		d.log.Info("onnx detector closed")
	}
	return nil
}
