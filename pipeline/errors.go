package pipeline

import (
	"math"

	"github.com/nvr-ai/go-detect/models"
	"github.com/pkg/errors"
)

// Request failures. Callers classify them with errors.Is.
var (
	// ErrUnsupportedMediaType is returned for an upload whose extension the
	// pipeline does not accept.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrDecode is returned when image bytes cannot be decoded.
	ErrDecode = errors.New("image could not be decoded")
	// ErrUnsupportedCodec is returned when a video container cannot be opened.
	ErrUnsupportedCodec = errors.New("video container or codec not supported")
	// ErrNoDecodableFrames is returned when a video opens but yields no frame.
	ErrNoDecodableFrames = errors.New("video has no decodable frames")
	// ErrIO is returned when temporary storage or the encoder fails.
	ErrIO = errors.New("temporary storage failure")
	// ErrInvalidConfidence is returned for a threshold outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	// ErrDetection is returned when the detector fails.
	ErrDetection = errors.New("detection failed")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("upload exceeds size limit")
)

var clientErrors = []error{
	models.ErrInvalidClassName,
	ErrUnsupportedMediaType,
	ErrDecode,
	ErrUnsupportedCodec,
	ErrNoDecodableFrames,
	ErrInvalidConfidence,
	ErrTooLarge,
}

// IsClientError reports whether err was caused by the request rather than
// by the service.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidateConfidence rejects thresholds outside [0, 1] and NaN.
func ValidateConfidence(conf float32) error {
	if math.IsNaN(float64(conf)) || conf < 0 || conf > 1 {
		return errors.Wrapf(ErrInvalidConfidence, "got %v", conf)
	}
	return nil
}

// uploadError classifies a failure while reading an upload body.
func uploadError(err error, what string) error {
	if errors.Is(err, ErrTooLarge) {
		return errors.Wrap(err, what)
	}
	return errors.Wrap(ErrIO, what+": "+err.Error())
}
