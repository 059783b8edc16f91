package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-detect/images"
)

// InputConfig holds the validated input selection.
type InputConfig struct {
	Kind images.MediaKind
	Path string
}

// validateInputFlags checks that exactly one of --image and --video names an
// existing file with a supported extension.
func validateInputFlags(videoPath, imagePath string) (*InputConfig, error) {
	if videoPath != "" && imagePath != "" {
		return nil, fmt.Errorf("cannot specify both --video and --image flags")
	}
	if videoPath == "" && imagePath == "" {
		return nil, fmt.Errorf("one of --video or --image is required")
	}

	if videoPath != "" {
		if err := validateFile(videoPath, images.KindVideo); err != nil {
			return nil, fmt.Errorf("video validation error: %w", err)
		}
		return &InputConfig{Kind: images.KindVideo, Path: videoPath}, nil
	}

	if err := validateFile(imagePath, images.KindImage); err != nil {
		return nil, fmt.Errorf("image validation error: %w", err)
	}
	return &InputConfig{Kind: images.KindImage, Path: imagePath}, nil
}

// validateFile checks if the file exists and has a supported extension.
func validateFile(path string, kind images.MediaKind) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if _, ok := images.IsSupported(kind, path); !ok {
		return fmt.Errorf("unsupported file extension: %s (supported: %s)",
			filepath.Ext(path), strings.Join(images.SupportedExtensions(kind), ", "))
	}
	return nil
}

// outputPath derives the default output file next to the input.
func outputPath(in *InputConfig) string {
	ext := ".jpg"
	if in.Kind == images.KindVideo {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(in.Path, filepath.Ext(in.Path))
	return base + "_annotated" + ext
}
