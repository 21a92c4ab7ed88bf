package capture

import "image"

// BlackFramePolicy decides whether a frame is a transient black artifact.
// Pixels are sampled at a stride for performance; a frame counts as black
// when at least BlackRatio of the sampled pixels fall below the brightness
// threshold.
type BlackFramePolicy struct {
	BrightnessThreshold uint8
	SampleStride        int
	BlackRatio          float64
}

// DefaultBlackFramePolicy matches the behavior of scene-change artifacts:
// nearly the whole frame at or close to zero brightness.
var DefaultBlackFramePolicy = BlackFramePolicy{
	BrightnessThreshold: 10,
	SampleStride:        16,
	BlackRatio:          0.99,
}

// IsBlack samples the frame and applies the policy thresholds.
func (p BlackFramePolicy) IsBlack(f *Frame) bool {
	stride := p.SampleStride
	if stride < 1 {
		stride = 1
	}

	var sampled, dark int
	width := f.Width()
	height := f.Height()
	for y := 0; y < height; y += stride {
		row := f.RowBytes(y)
		for x := 0; x < width; x += stride {
			r := row[x*4]
			g := row[x*4+1]
			b := row[x*4+2]
			sampled++
			if r < p.BrightnessThreshold && g < p.BrightnessThreshold && b < p.BrightnessThreshold {
				dark++
			}
		}
	}

	if sampled == 0 {
		return false
	}
	return float64(dark) >= p.BlackRatio*float64(sampled)
}

// FullscreenPolicy classifies a foreground window as likely exclusive
// fullscreen: no border chrome and bounds exactly covering its screen.
// Exclusive fullscreen applications commonly make duplication unavailable,
// so the caller can report a specific message instead of a generic failure.
type FullscreenPolicy struct{}

// Matches reports whether a borderless window exactly covering screenBounds
// looks like an exclusive-fullscreen application.
func (FullscreenPolicy) Matches(windowBounds, screenBounds image.Rectangle, hasBorder bool) bool {
	if hasBorder {
		return false
	}
	return windowBounds == screenBounds
}

// WindowInfo describes the foreground window as far as the platform can tell.
type WindowInfo struct {
	Bounds    image.Rectangle
	HasBorder bool
	Known     bool
}

// ForegroundWindowProbe reports the current foreground window. The portable
// default cannot enumerate windows and reports Known=false, which makes
// LikelyExclusiveFullscreen conservative rather than wrong.
type ForegroundWindowProbe func() WindowInfo

func noForegroundProbe() WindowInfo {
	return WindowInfo{}
}

// LikelyExclusiveFullscreen combines the probe and the policy.
func LikelyExclusiveFullscreen(probe ForegroundWindowProbe, screenBounds image.Rectangle) bool {
	if probe == nil {
		probe = noForegroundProbe
	}
	info := probe()
	if !info.Known {
		return false
	}
	return FullscreenPolicy{}.Matches(info.Bounds, screenBounds, info.HasBorder)
}
