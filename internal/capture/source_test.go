package capture

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"testing"
	"time"
)

func staticGrab(width, height int) GrabFunc {
	return func(bounds image.Rectangle) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, width, height)), nil
	}
}

func TestOpen_FirstGrabFails(t *testing.T) {
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		return nil, errors.New("access denied")
	}

	_, err := openBounds(0, image.Rect(0, 0, 640, 480), grab)
	if err == nil {
		t.Fatal("Expected open to fail when the probe grab fails")
	}
	if !errors.Is(err, ErrDuplicationUnsupported) {
		t.Errorf("Expected ErrDuplicationUnsupported, got: %v", err)
	}
}

func TestCaptureFrame_DeliversFrames(t *testing.T) {
	s, err := openBounds(0, image.Rect(0, 0, 320, 240), staticGrab(320, 240))
	if err != nil {
		t.Fatalf("openBounds failed: %v", err)
	}
	defer s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := s.CaptureFrame()
		if err != nil {
			t.Fatalf("CaptureFrame failed: %v", err)
		}
		if f != nil {
			if f.Width() != 320 || f.Height() != 240 {
				t.Errorf("Unexpected frame dimensions %dx%d", f.Width(), f.Height())
			}
			return
		}
	}
	t.Fatal("No frame delivered within deadline")
}

func TestCaptureFrame_TimeoutIsNotAnError(t *testing.T) {
	block := make(chan struct{})
	var probed atomic.Bool
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		if probed.CompareAndSwap(false, true) {
			// Let the synchronous open probe succeed.
			return image.NewRGBA(bounds.Sub(bounds.Min)), nil
		}
		<-block
		return image.NewRGBA(bounds.Sub(bounds.Min)), nil
	}

	s, err := openBounds(0, image.Rect(0, 0, 64, 64), grab)
	if err != nil {
		t.Fatalf("openBounds failed: %v", err)
	}
	defer func() {
		close(block)
		s.Close()
	}()

	// Drain the probe frame, then the next poll blocks forever.
	if f, err := s.CaptureFrame(); err != nil || f == nil {
		t.Fatalf("Expected probe frame, got frame=%v err=%v", f, err)
	}

	start := time.Now()
	f, err := s.CaptureFrame()
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Timeout must not be an error, got: %v", err)
	}
	if f != nil {
		t.Fatal("Expected no frame on timeout")
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("Expected CaptureFrame to block near the frame wait, returned after %v", elapsed)
	}
}

func TestCaptureFrame_DeviceLossRecovers(t *testing.T) {
	var calls atomic.Int64
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		n := calls.Add(1)
		if n == 2 {
			// One transient failure; the reinitialization grab succeeds.
			return nil, errors.New("device reset")
		}
		return image.NewRGBA(bounds.Sub(bounds.Min)), nil
	}

	s, err := openBounds(0, image.Rect(0, 0, 64, 64), grab)
	if err != nil {
		t.Fatalf("openBounds failed: %v", err)
	}
	defer s.Close()

	deadline := time.Now().Add(2 * time.Second)
	frames := 0
	for time.Now().Before(deadline) && frames < 2 {
		f, err := s.CaptureFrame()
		if err != nil {
			t.Fatalf("Expected transparent recovery, got error: %v", err)
		}
		if f != nil {
			frames++
		}
	}
	if frames < 2 {
		t.Fatal("Expected frames to keep flowing after a transient device loss")
	}
}

func TestCaptureFrame_PersistentDeviceLoss(t *testing.T) {
	var calls atomic.Int64
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		if calls.Add(1) == 1 {
			return image.NewRGBA(bounds.Sub(bounds.Min)), nil
		}
		return nil, errors.New("device removed")
	}

	s, err := openBounds(0, image.Rect(0, 0, 64, 64), grab)
	if err != nil {
		t.Fatalf("openBounds failed: %v", err)
	}
	defer s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := s.CaptureFrame()
		if err != nil {
			if !errors.Is(err, ErrDeviceLost) {
				t.Fatalf("Expected ErrDeviceLost, got: %v", err)
			}
			return
		}
	}
	t.Fatal("Expected persistent device loss to surface as an error")
}

func TestCaptureFrame_DimensionChangeIsDeviceLoss(t *testing.T) {
	var calls atomic.Int64
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		switch calls.Add(1) {
		case 1:
			return image.NewRGBA(image.Rect(0, 0, 64, 64)), nil
		case 2:
			return nil, errors.New("mode change")
		default:
			// Reinitialization sees a resized display.
			return image.NewRGBA(image.Rect(0, 0, 128, 128)), nil
		}
	}

	s, err := openBounds(0, image.Rect(0, 0, 64, 64), grab)
	if err != nil {
		t.Fatalf("openBounds failed: %v", err)
	}
	defer s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := s.CaptureFrame()
		if err != nil {
			if !errors.Is(err, ErrDeviceLost) {
				t.Fatalf("Expected ErrDeviceLost after dimension change, got: %v", err)
			}
			return
		}
	}
	t.Fatal("Expected dimension change during reinit to surface as device loss")
}

func TestClose_Idempotent(t *testing.T) {
	s, err := openBounds(0, image.Rect(0, 0, 64, 64), staticGrab(64, 64))
	if err != nil {
		t.Fatalf("openBounds failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	if _, err := s.CaptureFrame(); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Expected ErrSourceClosed after close, got: %v", err)
	}
}

func TestOffer_KeepsNewestFrame(t *testing.T) {
	s := &Source{frames: make(chan *Frame, 1)}

	for i := 0; i < 3; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.Pix[0] = byte(i)
		s.offer(&Frame{Img: img})
	}

	f := <-s.frames
	if f.Img.Pix[0] != 2 {
		t.Errorf("Expected newest frame to win, got frame %d", f.Img.Pix[0])
	}
}

func ExampleSource_CaptureFrame() {
	s, err := openBounds(0, image.Rect(0, 0, 2, 2), staticGrab(2, 2))
	if err != nil {
		fmt.Println("open:", err)
		return
	}
	defer s.Close()

	f, err := s.CaptureFrame()
	if err == nil && f != nil {
		fmt.Printf("%dx%d\n", f.Width(), f.Height())
	}
	// Output: 2x2
}
