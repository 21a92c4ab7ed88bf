package encoder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/audio"
	"github.com/clipdeck/clipdeck/internal/capture"
	"github.com/clipdeck/clipdeck/internal/config"
)

var (
	// ErrFinalized is returned for writes after Finalize.
	ErrFinalized = errors.New("encoder session already finalized")

	// ErrDimensionMismatch is returned for frames that do not match the
	// session's fixed dimensions. Frames are rejected, never resized.
	ErrDimensionMismatch = errors.New("frame dimensions do not match session")
)

// DefaultFrameRate is the fixed recording frame rate.
const DefaultFrameRate = 30

// BitrateKbps maps a quality tier to its fixed target video bitrate.
func BitrateKbps(q config.Quality) int {
	switch q {
	case config.QualityLow:
		return 2500
	case config.QualityHigh:
		return 8000
	default:
		return 5000
	}
}

// muxSink receives raw video frames and PCM audio and produces the muxed
// container file. The production sink is an ffmpeg process; tests inject a
// recording fake.
type muxSink interface {
	writeVideo(f *capture.Frame) error
	writeAudio(pcm []byte) error
	finalize() error
	// failureDetail returns a human-readable reason for the most recent
	// sink failure, empty when none is known.
	failureDetail() string
}

// Config describes one encoder session.
type Config struct {
	FFmpegPath string
	OutputPath string
	Width      int
	Height     int
	FrameRate  int
	Quality    config.Quality
}

// Encoder muxes a fixed-rate video stream and a PCM audio stream into one
// output file. The two stream clocks are independent and monotonic: video
// advances exactly one frame interval per accepted frame regardless of
// wall-clock call spacing, audio advances by the duration its byte count
// represents. The container writer interleaves by timestamp; callers never
// need to interleave writes themselves.
type Encoder struct {
	width, height int
	frameInterval time.Duration
	bitrateKbps   int
	sink          muxSink

	mu         sync.Mutex
	finalized  bool
	videoClock time.Duration
	audioClock time.Duration
	frames     int
	failReason string
}

// New starts an encoder session backed by an ffmpeg muxer process.
func New(cfg Config) (*Encoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid encoder dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}

	bitrate := BitrateKbps(cfg.Quality)
	sink, err := startFFmpegSink(cfg, bitrate)
	if err != nil {
		return nil, err
	}

	return newWithSink(cfg.Width, cfg.Height, cfg.FrameRate, bitrate, sink), nil
}

func newWithSink(width, height, frameRate, bitrateKbps int, sink muxSink) *Encoder {
	return &Encoder{
		width:         width,
		height:        height,
		frameInterval: time.Second / time.Duration(frameRate),
		bitrateKbps:   bitrateKbps,
		sink:          sink,
	}
}

// AddVideoFrame appends one frame and advances the video clock by one frame
// interval. A rejected frame never advances the clock.
func (e *Encoder) AddVideoFrame(f *capture.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized {
		return ErrFinalized
	}
	if f.Width() != e.width || f.Height() != e.height {
		return fmt.Errorf("%w: got %dx%d, session is %dx%d",
			ErrDimensionMismatch, f.Width(), f.Height(), e.width, e.height)
	}

	if err := e.sink.writeVideo(f); err != nil {
		e.failReason = e.describeSinkFailure("video write failed", err)
		return fmt.Errorf("video write failed: %w", err)
	}

	e.videoClock += e.frameInterval
	e.frames++
	return nil
}

// AddAudioFrame appends PCM bytes and advances the audio clock by their
// duration in the fixed capture format.
func (e *Encoder) AddAudioFrame(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized {
		return ErrFinalized
	}
	if len(pcm) == 0 {
		return nil
	}

	if err := e.sink.writeAudio(pcm); err != nil {
		e.failReason = e.describeSinkFailure("audio write failed", err)
		return fmt.Errorf("audio write failed: %w", err)
	}

	e.audioClock += audio.Duration(len(pcm))
	return nil
}

// Finalize flushes and closes the output. Idempotent: repeated calls after a
// successful finalize are no-ops returning success.
func (e *Encoder) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized {
		return nil
	}

	if err := e.sink.finalize(); err != nil {
		e.failReason = e.describeSinkFailure("finalize failed", err)
		e.finalized = true
		return fmt.Errorf("finalize failed: %w", err)
	}

	e.finalized = true
	return nil
}

// Close finalizes the session if it was left open. Used on teardown paths
// where the finalize error has nowhere to go.
func (e *Encoder) Close() {
	_ = e.Finalize()
}

// VideoDuration returns the video stream clock.
func (e *Encoder) VideoDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoClock
}

// AudioDuration returns the audio stream clock.
func (e *Encoder) AudioDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioClock
}

// FrameCount returns the number of accepted video frames.
func (e *Encoder) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// BitrateKbps returns the session's target video bitrate.
func (e *Encoder) BitrateKbps() int {
	return e.bitrateKbps
}

// FailureReason returns the human-readable reason for the last hard failure.
func (e *Encoder) FailureReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failReason
}

func (e *Encoder) describeSinkFailure(prefix string, err error) string {
	if detail := e.sink.failureDetail(); detail != "" {
		return fmt.Sprintf("%s: %v (%s)", prefix, err, detail)
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}
