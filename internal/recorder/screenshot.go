package recorder

import (
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/clipdeck/clipdeck/internal/capture"
)

const jpegQuality = 90

// TakeScreenshot captures one frame of the configured display and saves it
// as a still image. Black frames are treated as transient artifacts (common
// right after a scene change) and retried before being reported as a
// distinct condition.
func (o *Orchestrator) TakeScreenshot(contextName string) (string, error) {
	if !o.cfg.Capture.Enabled {
		return "", ErrCaptureDisabled
	}

	source, err := o.openFrameSource()
	if err != nil {
		o.notifier.Error(fmt.Sprintf("Screenshot failed: %v", err))
		return "", err
	}
	defer source.Close()

	frame, err := o.captureNonBlackFrame(source)
	if err != nil {
		o.notifier.Error(fmt.Sprintf("Screenshot failed: %v", err))
		return "", err
	}

	path, err := OutputPath(o.cfg.Output.Directory, contextName, o.cfg.ImageExtension(), time.Now())
	if err != nil {
		o.notifier.Error(fmt.Sprintf("Screenshot failed: %v", err))
		return "", err
	}

	if err := o.saveImage(frame, path); err != nil {
		o.notifier.Error(fmt.Sprintf("Screenshot failed: %v", err))
		return "", err
	}

	o.notifier.Info(fmt.Sprintf("Screenshot saved: %s", path))
	slog.Info("screenshot saved", "path", path)
	return path, nil
}

// captureNonBlackFrame retries black frames up to the attempt budget. A
// frame wait timeout inside an attempt also counts against the budget.
func (o *Orchestrator) captureNonBlackFrame(source frameSource) (*capture.Frame, error) {
	var sawBlack bool

	for attempt := 1; attempt <= screenshotAttempts; attempt++ {
		frame, err := source.CaptureFrame()
		if err != nil {
			return nil, err
		}
		if frame != nil && !o.blackPolicy.IsBlack(frame) {
			return frame, nil
		}
		if frame != nil {
			sawBlack = true
			slog.Debug("sampled black frame, retrying", "attempt", attempt)
		}

		if attempt < screenshotAttempts {
			time.Sleep(o.retryDelay)
		}
	}

	if sawBlack {
		return nil, ErrBlackFrame
	}
	return nil, errors.New("no frame received from display")
}

func (o *Orchestrator) saveImage(frame *capture.Frame, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
	}
	defer file.Close()

	switch strings.ToLower(o.cfg.Output.ImageFormat) {
	case "jpg", "jpeg":
		err = jpeg.Encode(file, frame.Img, &jpeg.Options{Quality: jpegQuality})
	default:
		err = png.Encode(file, frame.Img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}
