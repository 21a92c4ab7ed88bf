package capture

import (
	"image"
	"time"
)

// Frame is one captured monitor image. Ownership transfers to the caller on
// each successful CaptureFrame; the source never reuses a returned buffer.
type Frame struct {
	Img        *image.RGBA
	CapturedAt time.Time
}

func (f *Frame) Width() int {
	return f.Img.Rect.Dx()
}

func (f *Frame) Height() int {
	return f.Img.Rect.Dy()
}

// RowBytes returns the pixels of row y as a 4-bytes-per-pixel slice.
func (f *Frame) RowBytes(y int) []byte {
	start := y * f.Img.Stride
	return f.Img.Pix[start : start+f.Width()*4]
}
