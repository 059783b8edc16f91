package images

import (
	"bytes"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is the quality used when none is configured.
const DefaultJPEGQuality = 95

// Decode decodes an encoded still image into a BGR Mat.
//
// The caller owns the returned Mat and must Close it. On error no Mat is
// allocated.
//
// Arguments:
//   - data: The encoded image bytes (JPEG, PNG, ...).
//
// Returns:
//   - gocv.Mat: The decoded image.
//   - error: An error if the bytes are empty or malformed.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, errors.New("image data is empty")
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "image decoding failed")
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errors.New("image data is not a decodable image")
	}

	return mat, nil
}

// EncodeJPEG encodes img as a JPEG.
//
// Arguments:
//   - img: The image to encode.
//   - quality: JPEG quality from 1 to 100; out of range uses DefaultJPEGQuality.
//
// Returns:
//   - []byte: The encoded bytes, owned by the caller.
//   - error: An error if encoding fails.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("cannot encode an empty image")
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, errors.Wrap(err, "jpeg encoding failed")
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases.
	return bytes.Clone(buf.GetBytes()), nil
}
