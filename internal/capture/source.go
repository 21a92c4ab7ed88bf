package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
)

var (
	// ErrDuplicationUnsupported means the display cannot be duplicated in the
	// current mode, for example when an exclusive-fullscreen application owns
	// the output or the display index no longer exists.
	ErrDuplicationUnsupported = errors.New("display duplication unsupported in current mode")

	// ErrDeviceLost means the capture device became invalid and could not be
	// reinitialized.
	ErrDeviceLost = errors.New("capture device lost")

	// ErrSourceClosed is returned by CaptureFrame after Close.
	ErrSourceClosed = errors.New("frame source closed")
)

const (
	// defaultFrameWait bounds how long CaptureFrame blocks for a new frame.
	// Expiry is the normal idle case between monitor updates, not an error.
	defaultFrameWait = 100 * time.Millisecond

	// grabInterval is the cadence of the background grab loop. Slightly
	// faster than the 30fps consumer so the queue never starves on a healthy
	// device.
	grabInterval = 25 * time.Millisecond
)

// GrabFunc duplicates one monitor rectangle into an RGBA buffer.
type GrabFunc func(bounds image.Rectangle) (*image.RGBA, error)

// Source duplicates a single display's output into CPU-readable frames.
// One Source owns the duplication exclusively for its lifetime; frames are
// handed over through a one-slot queue so the consumer always sees the most
// recent monitor update.
type Source struct {
	display int
	bounds  image.Rectangle
	grab    GrabFunc

	frameWait time.Duration

	frames chan *Frame
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	failure error
	closed  bool
}

// Open acquires duplication of the given display and starts the grab loop.
func Open(display int) (*Source, error) {
	return openWithGrab(display, screenshot.CaptureRect)
}

func openWithGrab(display int, grab GrabFunc) (*Source, error) {
	if display < 0 || display >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("%w: display %d not found", ErrDuplicationUnsupported, display)
	}

	bounds := screenshot.GetDisplayBounds(display)
	return openBounds(display, bounds, grab)
}

func openBounds(display int, bounds image.Rectangle, grab GrabFunc) (*Source, error) {
	s := &Source{
		display:   display,
		bounds:    bounds,
		grab:      grab,
		frameWait: defaultFrameWait,
		frames:    make(chan *Frame, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	// Probe once synchronously so an unsupported display mode fails Open
	// instead of the first CaptureFrame.
	img, err := s.grab(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDuplicationUnsupported, err)
	}
	s.offer(&Frame{Img: img, CapturedAt: time.Now()})

	go s.run()
	return s, nil
}

// Bounds returns the duplicated display rectangle. Dimensions are fixed for
// the lifetime of the source.
func (s *Source) Bounds() image.Rectangle {
	return s.bounds
}

// CaptureFrame waits up to ~100ms for a new frame. A nil frame with a nil
// error means no update arrived in time; the caller should simply try again
// on its next tick.
func (s *Source) CaptureFrame() (*Frame, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.frameWait)
	defer timer.Stop()

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return nil, s.Err()
	case <-timer.C:
		return nil, nil
	}
}

// Err returns the persistent failure, if the source has one.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if s.closed {
		return ErrSourceClosed
	}
	return nil
}

// Close tears down the duplication. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return nil
}

func (s *Source) run() {
	defer close(s.done)

	ticker := time.NewTicker(grabInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			img, err := s.grab(s.bounds)
			if err != nil {
				// Transient device loss: tear down and retry once with the
				// same display. A second failure is persistent.
				slog.Debug("frame grab failed, reinitializing", "display", s.display, "error", err)
				img, err = s.reinitialize()
				if err != nil {
					s.mu.Lock()
					s.failure = fmt.Errorf("%w: %v", ErrDeviceLost, err)
					s.mu.Unlock()
					slog.Warn("capture device lost", "display", s.display, "error", err)
					return
				}
			}
			s.offer(&Frame{Img: img, CapturedAt: time.Now()})
		}
	}
}

// reinitialize re-acquires the same display after a device reset. Dimensions
// must not change mid-session; a mode change that resizes the display is
// treated as device loss.
func (s *Source) reinitialize() (*image.RGBA, error) {
	img, err := s.grab(s.bounds)
	if err != nil {
		return nil, err
	}
	if img.Rect.Dx() != s.bounds.Dx() || img.Rect.Dy() != s.bounds.Dy() {
		return nil, fmt.Errorf("display dimensions changed from %dx%d to %dx%d",
			s.bounds.Dx(), s.bounds.Dy(), img.Rect.Dx(), img.Rect.Dy())
	}
	slog.Info("capture device reinitialized", "display", s.display)
	return img, nil
}

// offer replaces any stale queued frame with the newest one.
func (s *Source) offer(f *Frame) {
	select {
	case s.frames <- f:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- f:
		default:
		}
	}
}

// NumDisplays reports how many displays can be duplicated.
func NumDisplays() int {
	return screenshot.NumActiveDisplays()
}

// DisplayBounds returns the bounds of a display by index.
func DisplayBounds(display int) image.Rectangle {
	return screenshot.GetDisplayBounds(display)
}
