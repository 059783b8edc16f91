package images

import (
	"path/filepath"
	"slices"
	"strings"
)

// MediaKind identifies which pipeline accepts an upload.
type MediaKind string

const (
	// KindImage is a still image.
	KindImage MediaKind = "image"
	// KindVideo is a video container.
	KindVideo MediaKind = "video"
)

// Supported file extensions, lower-case and without the leading dot.
var (
	supportedImageExtensions = []string{"jpg", "jpeg", "png"}
	supportedVideoExtensions = []string{"mp4", "mov", "avi"}
)

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// SupportedExtensions returns the extensions accepted for a media kind.
func SupportedExtensions(kind MediaKind) []string {
	switch kind {
	case KindImage:
		return slices.Clone(supportedImageExtensions)
	case KindVideo:
		return slices.Clone(supportedVideoExtensions)
	default:
		return nil
	}
}

// IsSupported reports whether filename has an extension accepted for kind.
//
// Arguments:
//   - kind: The media kind the upload was sent as.
//   - filename: The declared upload filename.
//
// Returns:
//   - string: The normalized extension.
//   - bool: True if the extension is accepted.
func IsSupported(kind MediaKind, filename string) (string, bool) {
	ext := Extension(filename)
	if ext == "" {
		return "", false
	}
	return ext, slices.Contains(SupportedExtensions(kind), ext)
}
