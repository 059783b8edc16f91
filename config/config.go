// Package config - Service configuration from defaults, a YAML file and the environment.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nvr-ai/go-detect/annotator"
	"github.com/nvr-ai/go-detect/api"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DETECT_"

// Config is the root configuration of the detection service.
type Config struct {
	Server   ServerConfig      `yaml:"server"   envPrefix:"SERVER_"`
	Model    ModelConfig       `yaml:"model"    envPrefix:"MODEL_"`
	Image    ImageConfig       `yaml:"image"    envPrefix:"IMAGE_"`
	Video    VideoConfig       `yaml:"video"    envPrefix:"VIDEO_"`
	Limits   LimitsConfig      `yaml:"limits"   envPrefix:"LIMITS_"`
	Spool    SpoolConfig       `yaml:"spool"    envPrefix:"SPOOL_"`
	Annotate annotator.Options `yaml:"annotate" envPrefix:"ANNOTATE_"`
	Log      LogConfig         `yaml:"log"      envPrefix:"LOG_"`
	Tracing  TracingConfig     `yaml:"tracing"  envPrefix:"TRACING_"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"                env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	// ReadTimeout and WriteTimeout bound whole uploads and responses. Zero
	// disables them, which long videos need.
	ReadTimeout   time.Duration `yaml:"read_timeout"   env:"READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout"  env:"WRITE_TIMEOUT"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE"`
}

// ModelConfig selects the detection model and how it runs.
type ModelConfig struct {
	Path          string  `yaml:"path"            env:"PATH"`
	Backend       string  `yaml:"backend"         env:"BACKEND"`
	SharedLibPath string  `yaml:"shared_lib_path" env:"SHARED_LIB_PATH"`
	InputSize     int     `yaml:"input_size"      env:"INPUT_SIZE"`
	IoUThreshold  float32 `yaml:"iou_threshold"   env:"IOU_THRESHOLD"`
	DeviceID      int     `yaml:"device_id"       env:"DEVICE_ID"`
	WarmUpRuns    int     `yaml:"warm_up_runs"    env:"WARM_UP_RUNS"`
}

// VideoConfig controls the video pipeline.
type VideoConfig struct {
	DefaultFPS    float64 `yaml:"default_fps"    env:"DEFAULT_FPS"`
	Codec         string  `yaml:"codec"          env:"CODEC"`
	FrameBuffer   int     `yaml:"frame_buffer"   env:"FRAME_BUFFER"`
	ProgressEvery int     `yaml:"progress_every" env:"PROGRESS_EVERY"`
}

// ImageConfig controls the image pipeline.
type ImageConfig struct {
	// JPEGQuality is the encoder quality of annotated images, 1 to 100.
	JPEGQuality int `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
}

// LimitsConfig bounds upload sizes in bytes. Zero means unlimited.
type LimitsConfig struct {
	MaxImageBytes int64 `yaml:"max_image_bytes" env:"MAX_IMAGE_BYTES"`
	MaxVideoBytes int64 `yaml:"max_video_bytes" env:"MAX_VIDEO_BYTES"`
}

// SpoolConfig locates temporary video files.
type SpoolConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

type TracingConfig struct {
	// Endpoint is the OTLP/HTTP traces URL. Empty disables tracing.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	p := pipeline.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownGrace:     30 * time.Second,
		},
		Model: ModelConfig{
			Path:         "final_detection_model.onnx",
			Backend:      string(providers.CPUBackend),
			InputSize:    640,
			IoUThreshold: 0.45,
			WarmUpRuns:   1,
		},
		Video: VideoConfig{
			DefaultFPS:    p.DefaultFPS,
			Codec:         p.Codec,
			FrameBuffer:   p.FrameBuffer,
			ProgressEvery: p.ProgressEvery,
		},
		Image: ImageConfig{JPEGQuality: p.JPEGQuality},
		Limits: LimitsConfig{
			MaxImageBytes: p.MaxImageBytes,
			MaxVideoBytes: p.MaxVideoBytes,
		},
		Annotate: annotator.DefaultOptions(),
		Log:      LogConfig{Level: "info"},
	}
}

// Load builds the configuration.
//
// Defaults are applied first, then the YAML file at path (skipped when path
// is empty), then DETECT_* environment variables. Unknown YAML keys are
// rejected.
//
// Arguments:
//   - path: The YAML file path, or "".
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if the file cannot be read or parsed, or a value is invalid.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if _, err := providers.ParseBackend(c.Model.Backend); err != nil {
		return errors.Wrap(err, "model.backend")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}

	switch {
	case c.Server.Addr == "":
		return errors.New("server.addr is required")
	case c.Model.Path == "":
		return errors.New("model.path is required")
	case c.Model.IoUThreshold <= 0 || c.Model.IoUThreshold > 1:
		return errors.Errorf("model.iou_threshold must be in (0, 1], got %v", c.Model.IoUThreshold)
	case c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100:
		return errors.Errorf("image.jpeg_quality must be in [1, 100], got %d", c.Image.JPEGQuality)
	case c.Video.DefaultFPS <= 0:
		return errors.Errorf("video.default_fps must be positive, got %v", c.Video.DefaultFPS)
	case len(c.Video.Codec) != 4:
		return errors.Errorf("video.codec must be a four character code, got %q", c.Video.Codec)
	case c.Video.FrameBuffer < 1:
		return errors.Errorf("video.frame_buffer must be at least 1, got %d", c.Video.FrameBuffer)
	case c.Limits.MaxImageBytes < 0 || c.Limits.MaxVideoBytes < 0:
		return errors.New("limits must not be negative")
	case c.Annotate.Thickness < 1:
		return errors.Errorf("annotate.thickness must be at least 1, got %d", c.Annotate.Thickness)
	}
	return nil
}

// Detector returns the detector settings for a model with numClasses outputs.
func (c *Config) Detector(numClasses int) detectors.Config {
	d := detectors.DefaultConfig(c.Model.Path, numClasses)
	d.SharedLibPath = c.Model.SharedLibPath
	if c.Model.InputSize > 0 {
		d.InputSize = c.Model.InputSize
	}
	d.NMS.IoUThreshold = c.Model.IoUThreshold

	// Validate has already checked the backend.
	d.Provider.Backend, _ = providers.ParseBackend(c.Model.Backend)
	d.Provider.CUDA.DeviceID = c.Model.DeviceID
	d.Provider.OpenVINO.DeviceID = strconv.Itoa(c.Model.DeviceID)
	return d
}

// Pipeline returns the media pipeline settings.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		SpoolDir:      c.Spool.Dir,
		DefaultFPS:    c.Video.DefaultFPS,
		Codec:         c.Video.Codec,
		FrameBuffer:   c.Video.FrameBuffer,
		ProgressEvery: c.Video.ProgressEvery,
		MaxImageBytes: c.Limits.MaxImageBytes,
		MaxVideoBytes: c.Limits.MaxVideoBytes,
		JPEGQuality:   c.Image.JPEGQuality,
	}
}

// API returns the HTTP handler settings.
func (c *Config) API() api.Config {
	return api.Config{
		MaxImageBytes: c.Limits.MaxImageBytes,
		MaxVideoBytes: c.Limits.MaxVideoBytes,
	}
}
