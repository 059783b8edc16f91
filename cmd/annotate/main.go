// Command annotate runs the detection pipelines on local files.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/nvr-ai/go-detect/annotator"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/pipeline"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		modelPath  string
		videoPath  string
		imagePath  string
		classes    string
		outPath    string
		confidence float64
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model, overrides the config")
	flag.StringVar(&videoPath, "video", "", "Path to video file (.mp4, .avi, .mov)")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .jpeg, .png)")
	flag.StringVar(&classes, "classes", "", "Comma-separated class names to outline")
	flag.StringVar(&outPath, "out", "", "Output file, defaults to <input>_annotated.<ext>")
	flag.Float64Var(&confidence, "conf", 0.25, "Object detection confidence threshold")
	flag.Parse()

	if err := run(configPath, modelPath, videoPath, imagePath, classes, outPath, float32(confidence)); err != nil {
		fmt.Fprintln(os.Stderr, "annotate:", err)
		os.Exit(1)
	}
}

func run(configPath, modelPath, videoPath, imagePath, classes, outPath string, conf float32) error {
	in, err := validateInputFlags(videoPath, imagePath)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = outputPath(in)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	catalog := models.MiningClasses
	detector, err := detectors.NewONNXDetector(cfg.Detector(catalog.Len()), log)
	if err != nil {
		return err
	}
	defer inference.DestroyEnvironment()
	defer detector.Close()

	p := pipeline.New(cfg.Pipeline(), catalog, annotator.New(detector, catalog, cfg.Annotate, log), log)

	src, err := os.Open(in.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	handle := p.HandleImage
	if in.Kind == images.KindVideo {
		handle = p.HandleVideo
	}
	res, err := handle(ctx, pipeline.Upload{Filename: in.Path, Body: src}, classes, conf)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	dst, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, res.Body); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	log.Info("annotated file written",
		zap.String("input", in.Path),
		zap.String("output", outPath),
		zap.Int("frames", res.Frames),
	)
	return nil
}
