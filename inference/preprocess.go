package inference

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// padValue is the gray (114/255) the letterbox border is filled with.
const padValue = 114.0 / 255.0

// Letterbox describes how a source image was placed inside the square model
// input: scaled uniformly by Scale and offset by PadX, PadY input pixels.
type Letterbox struct {
	Scale float32
	PadX  float32
	PadY  float32
}

// NewLetterbox fits a width x height image into a size x size square,
// keeping its aspect ratio and centering it.
func NewLetterbox(width, height, size int) Letterbox {
	lb, _, _ := fit(width, height, size)
	return lb
}

// ToSource maps a point in model-input pixels back to source pixels.
func (l Letterbox) ToSource(x, y float32) (float32, float32) {
	return (x - l.PadX) / l.Scale, (y - l.PadY) / l.Scale
}

// fit returns the placement and the scaled image dimensions.
func fit(width, height, size int) (Letterbox, int, int) {
	if width <= 0 || height <= 0 || size <= 0 {
		return Letterbox{Scale: 1}, 0, 0
	}
	scale := math.Min(float64(size)/float64(width), float64(size)/float64(height))
	w := min(max(int(math.Round(float64(width)*scale)), 1), size)
	h := min(max(int(math.Round(float64(height)*scale)), 1), size)
	return Letterbox{
		Scale: float32(scale),
		PadX:  float32((size - w) / 2),
		PadY:  float32((size - h) / 2),
	}, w, h
}

// PrepareInput letterboxes img into size x size and writes it into dst as
// planar RGB floats in [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination tensor, shaped (1, 3, size, size).
//   - size: The square model input edge in pixels.
//
// Returns:
//   - Letterbox: The placement needed to map model output back to img.
//   - error: An error if the tensor is too small.
func PrepareInput(img image.Image, dst *ort.Tensor[float32], size int) (Letterbox, error) {
	return FillCHW(img, dst.GetData(), size)
}

// FillCHW letterboxes img into size x size and writes planar RGB floats into
// data. The border outside the scaled image is gray.
func FillCHW(img image.Image, data []float32, size int) (Letterbox, error) {
	channelSize := size * size
	if len(data) < channelSize*3 {
		return Letterbox{}, fmt.Errorf("destination only holds %d floats, needs %d (make sure it's the right shape!)",
			len(data), channelSize*3)
	}
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	b := img.Bounds()
	lb, w, h := fit(b.Dx(), b.Dy(), size)
	if w == 0 || h == 0 {
		return Letterbox{}, fmt.Errorf("cannot letterbox an empty %dx%d image", b.Dx(), b.Dy())
	}
	padX, padY := int(lb.PadX), int(lb.PadY)

	if w != size || h != size {
		for i := range data[:channelSize*3] {
			data[i] = padValue
		}
	}
	if w != b.Dx() || h != b.Dy() {
		img = resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	}

	origin := img.Bounds().Min
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			off := rgba.PixOffset(origin.X, origin.Y+y)
			row := rgba.Pix[off : off+w*4]
			i := (y+padY)*size + padX
			for x := 0; x < w*4; x += 4 {
				red[i] = float32(row[x]) / 255.0
				green[i] = float32(row[x+1]) / 255.0
				blue[i] = float32(row[x+2]) / 255.0
				i++
			}
		}
		return lb, nil
	}

	for y := 0; y < h; y++ {
		i := (y+padY)*size + padX
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(origin.X+x, origin.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return lb, nil
}
