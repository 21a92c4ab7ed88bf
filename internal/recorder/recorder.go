// Package recorder drives the capture-and-encode pipeline: the screenshot
// retry path, the recording lifecycle state machine and the fixed-rate
// capture loop feeding the encoder.
package recorder

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipdeck/clipdeck/internal/audio"
	"github.com/clipdeck/clipdeck/internal/capture"
	"github.com/clipdeck/clipdeck/internal/config"
	"github.com/clipdeck/clipdeck/internal/encoder"
	"github.com/clipdeck/clipdeck/internal/notify"
)

// State is the orchestrator-level recording state.
type State string

const (
	StateIdle       State = "IDLE"
	StateRecording  State = "RECORDING"
	StateFinalizing State = "FINALIZING"
	StateFailed     State = "FAILED"
)

var (
	// ErrCaptureDisabled means capture is switched off in configuration.
	ErrCaptureDisabled = errors.New("capture is disabled in configuration")

	// ErrAlreadyRecording is returned by StartRecording mid-session.
	ErrAlreadyRecording = errors.New("a recording is already in progress")

	// ErrNotRecording is returned by Stop/Cancel with no active session.
	ErrNotRecording = errors.New("no recording in progress")

	// ErrNoFramesCaptured means a recording stopped before any frame
	// arrived, for example an immediate stop or a persistently failing
	// source.
	ErrNoFramesCaptured = errors.New("no frames captured")

	// ErrBlackFrame means every screenshot attempt sampled black; the game
	// is most likely still loading.
	ErrBlackFrame = errors.New("captured frames were black - the game may still be loading")

	// ErrExclusiveFullscreen carries the specific message for duplication
	// blocked by an exclusive-fullscreen application.
	ErrExclusiveFullscreen = errors.New("capture unavailable: the game appears to run in exclusive fullscreen")
)

const (
	screenshotAttempts = 3
	defaultRetryDelay  = 250 * time.Millisecond

	defaultStopWait   = 5 * time.Second
	defaultCancelWait = 2 * time.Second

	// maxAudioChunk bounds single encoder audio writes when draining the
	// loopback buffer at stop.
	maxAudioChunk = 256 * 1024
)

// frameSource is what the loop needs from capture.Source.
type frameSource interface {
	CaptureFrame() (*capture.Frame, error)
	Bounds() image.Rectangle
	Close() error
}

// audioSource is what the lifecycle needs from audio.Loopback.
type audioSource interface {
	StartRecording() error
	GetBufferedAudio() []byte
	StopRecording() ([]byte, error)
	Err() error
}

// videoEncoder is what the loop needs from encoder.Encoder.
type videoEncoder interface {
	AddVideoFrame(f *capture.Frame) error
	AddAudioFrame(pcm []byte) error
	Finalize() error
	Close()
	FrameCount() int
	FailureReason() string
}

type sourceOpener func(display int) (frameSource, error)
type encoderFactory func(width, height int, outputPath string) (videoEncoder, error)
type audioFactory func() audioSource

// Session describes one active or just-finished recording.
type Session struct {
	ID         string    `json:"id"`
	Context    string    `json:"context"`
	OutputPath string    `json:"output_path"`
	StartedAt  time.Time `json:"started_at"`
}

// Progress is emitted by the capture loop once per second of captured video.
type Progress struct {
	Frames  int
	Elapsed time.Duration
}

// loopResult is handed from the capture loop to the stopping caller. The
// loop owns the encoder and the frame counter for its whole lifetime; they
// cross over exactly once, through this message.
type loopResult struct {
	enc    videoEncoder
	frames int
	err    error
}

// Orchestrator owns the screenshot and recording flows for one display.
type Orchestrator struct {
	cfg      *config.Config
	notifier notify.Notifier

	openSource    sourceOpener
	newEncoder    encoderFactory
	newAudio      audioFactory
	fgProbe       capture.ForegroundWindowProbe
	displayBounds func(display int) image.Rectangle

	blackPolicy   capture.BlackFramePolicy
	frameInterval time.Duration
	retryDelay    time.Duration
	stopWait      time.Duration
	cancelWait    time.Duration

	mu       sync.Mutex
	state    State
	session  *Session
	audioSrc audioSource
	source   frameSource
	cancel   chan struct{}
	loopDone chan loopResult
	progress chan Progress
}

// New builds an orchestrator using the native capture, loopback and encoder
// implementations.
func New(cfg *config.Config, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.Default()
	}

	o := &Orchestrator{
		cfg:           cfg,
		notifier:      notifier,
		blackPolicy:   capture.DefaultBlackFramePolicy,
		frameInterval: time.Second / encoder.DefaultFrameRate,
		retryDelay:    defaultRetryDelay,
		stopWait:      defaultStopWait,
		cancelWait:    defaultCancelWait,
		state:         StateIdle,
		progress:      make(chan Progress, 8),
	}

	o.openSource = func(display int) (frameSource, error) {
		return capture.Open(display)
	}
	o.newEncoder = func(width, height int, outputPath string) (videoEncoder, error) {
		return encoder.New(encoder.Config{
			FFmpegPath: cfg.Tools.FFmpeg,
			OutputPath: outputPath,
			Width:      width,
			Height:     height,
			FrameRate:  encoder.DefaultFrameRate,
			Quality:    cfg.Output.Quality,
		})
	}
	o.newAudio = func() audioSource {
		return audio.NewLoopback(cfg.Tools.FFmpeg)
	}
	o.displayBounds = capture.DisplayBounds

	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns a copy of the active session, or nil.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	s := *o.session
	return &s
}

// Progress exposes the capture loop's progress events.
func (o *Orchestrator) Progress() <-chan Progress {
	return o.progress
}

// StartRecording opens the frame and audio sources and launches the capture
// loop. The context name (usually the game title) feeds the output filename.
func (o *Orchestrator) StartRecording(contextName string) (*Session, error) {
	if !o.cfg.Capture.Enabled {
		return nil, ErrCaptureDisabled
	}

	o.mu.Lock()
	if o.state == StateRecording || o.state == StateFinalizing {
		o.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	o.state = StateRecording
	o.mu.Unlock()

	source, err := o.openFrameSource()
	if err != nil {
		o.setIdleState(StateIdle)
		return nil, err
	}

	outputPath, err := OutputPath(o.cfg.Output.Directory, contextName, "mp4", time.Now())
	if err != nil {
		source.Close()
		o.setIdleState(StateIdle)
		return nil, err
	}

	audioSrc := o.newAudio()
	if err := audioSrc.StartRecording(); err != nil {
		// Video-only recording is better than none; the host hears about it.
		slog.Warn("audio capture unavailable, recording video only", "error", err)
		audioSrc = nil
	}

	session := &Session{
		ID:         uuid.NewString(),
		Context:    contextName,
		OutputPath: outputPath,
		StartedAt:  time.Now(),
	}

	cancel := make(chan struct{})
	loopDone := make(chan loopResult, 1)

	o.mu.Lock()
	o.session = session
	o.source = source
	o.audioSrc = audioSrc
	o.cancel = cancel
	o.loopDone = loopDone
	o.mu.Unlock()

	go o.captureLoop(source, outputPath, cancel, loopDone)

	o.notifier.Info(fmt.Sprintf("Recording started: %s", SanitizeContext(contextName)))
	slog.Info("recording started", "session", session.ID, "output", outputPath)
	return session, nil
}

// captureLoop pulls frames at the fixed cadence and feeds the encoder. The
// encoder is constructed lazily on the first frame, which fixes the session
// dimensions. The loop polls cancellation once per tick and never stops
// mid-frame.
func (o *Orchestrator) captureLoop(source frameSource, outputPath string, cancel <-chan struct{}, done chan<- loopResult) {
	var (
		enc      videoEncoder
		frames   int
		lastEmit time.Duration
	)

	ticker := time.NewTicker(o.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			done <- loopResult{enc: enc, frames: frames}
			return
		case <-ticker.C:
			frame, err := source.CaptureFrame()
			if err != nil {
				done <- loopResult{enc: enc, frames: frames, err: err}
				return
			}
			if frame == nil {
				// Idle tick between monitor updates.
				continue
			}

			if enc == nil {
				enc, err = o.newEncoder(frame.Width(), frame.Height(), outputPath)
				if err != nil {
					done <- loopResult{frames: frames, err: fmt.Errorf("failed to start encoder: %w", err)}
					return
				}
			}

			if err := enc.AddVideoFrame(frame); err != nil {
				if errors.Is(err, encoder.ErrDimensionMismatch) {
					// Source guarantees fixed dimensions; a mismatch here
					// means a mode change slipped through. Drop the frame.
					slog.Warn("dropping dimension-mismatched frame", "error", err)
					continue
				}
				done <- loopResult{enc: enc, frames: frames, err: err}
				return
			}
			frames++

			if elapsed := time.Duration(frames) * o.frameInterval; elapsed-lastEmit >= time.Second {
				lastEmit = elapsed
				select {
				case o.progress <- Progress{Frames: frames, Elapsed: elapsed}:
				default:
				}
			}
		}
	}
}

// StopRecording signals the loop, drains the audio buffer into the encoder
// and finalizes the container. It returns the output path, or an error with
// a reason when nothing was captured.
func (o *Orchestrator) StopRecording() (string, error) {
	o.mu.Lock()
	if o.state != StateRecording {
		o.mu.Unlock()
		return "", ErrNotRecording
	}
	o.state = StateFinalizing
	session := o.session
	source := o.source
	audioSrc := o.audioSrc
	cancel := o.cancel
	loopDone := o.loopDone
	o.mu.Unlock()

	close(cancel)

	var result loopResult
	select {
	case result = <-loopDone:
	case <-time.After(o.stopWait):
		result = loopResult{err: fmt.Errorf("capture loop did not stop within %s", o.stopWait)}
		// The loop still owns the encoder; reap it whenever it finally exits.
		go reapLoop(loopDone, session.OutputPath)
	}

	source.Close()

	var pcm []byte
	var audioErr error
	if audioSrc != nil {
		pcm, audioErr = audioSrc.StopRecording()
		if audioErr != nil {
			// Keep whatever audio arrived before the device vanished.
			slog.Warn("audio capture ended early", "error", audioErr)
		}
	}

	if result.enc == nil || result.frames == 0 {
		if result.enc != nil {
			result.enc.Close()
			os.Remove(session.OutputPath)
		}
		o.clearSession(StateIdle)

		reason := ErrNoFramesCaptured
		if result.err != nil {
			o.notifier.Error(fmt.Sprintf("Recording failed: %v", result.err))
			return "", fmt.Errorf("%w: %v", reason, result.err)
		}
		o.notifier.Error("Recording failed: no frames captured")
		return "", reason
	}

	for len(pcm) > 0 {
		chunk := pcm
		if len(chunk) > maxAudioChunk {
			chunk = pcm[:maxAudioChunk]
		}
		if err := result.enc.AddAudioFrame(chunk); err != nil {
			slog.Warn("failed to append audio, keeping video", "error", err)
			break
		}
		pcm = pcm[len(chunk):]
	}

	if err := result.enc.Finalize(); err != nil {
		o.clearSession(StateFailed)
		reason := result.enc.FailureReason()
		if reason == "" {
			reason = err.Error()
		}
		o.notifier.Error(fmt.Sprintf("Recording failed: %s", reason))
		return "", fmt.Errorf("failed to finalize recording: %w", err)
	}

	if err := validateOutput(session.OutputPath); err != nil {
		o.clearSession(StateFailed)
		o.notifier.Error(fmt.Sprintf("Recording failed: %v", err))
		return "", err
	}

	o.clearSession(StateIdle)
	o.notifier.Info(fmt.Sprintf("Recording saved: %s", session.OutputPath))
	slog.Info("recording saved",
		"session", session.ID,
		"output", session.OutputPath,
		"frames", result.frames,
		"capture_error", result.err,
	)
	return session.OutputPath, nil
}

// CancelRecording tears the session down without finalizing, discarding the
// partial output.
func (o *Orchestrator) CancelRecording() error {
	o.mu.Lock()
	if o.state != StateRecording {
		o.mu.Unlock()
		return ErrNotRecording
	}
	session := o.session
	source := o.source
	audioSrc := o.audioSrc
	cancel := o.cancel
	loopDone := o.loopDone
	o.mu.Unlock()

	close(cancel)

	var result loopResult
	timedOut := false
	select {
	case result = <-loopDone:
	case <-time.After(o.cancelWait):
		timedOut = true
		go reapLoop(loopDone, session.OutputPath)
	}

	source.Close()
	if audioSrc != nil {
		audioSrc.StopRecording()
	}
	if !timedOut {
		if result.enc != nil {
			result.enc.Close()
		}
		os.Remove(session.OutputPath)
	}

	o.clearSession(StateIdle)
	slog.Info("recording cancelled", "session", session.ID)
	return nil
}

// reapLoop drains a capture loop that outlived its stop window, releasing
// the encoder it still owns and discarding the partial output file. Removing
// the file any earlier would race the encoder still writing to it.
func reapLoop(loopDone <-chan loopResult, outputPath string) {
	result := <-loopDone
	if result.enc != nil {
		result.enc.Close()
	}
	os.Remove(outputPath)
	slog.Warn("late capture loop reaped", "output", outputPath)
}

// openFrameSource opens duplication for the configured display and maps an
// unsupported mode to the specific exclusive-fullscreen message when the
// heuristic matches.
func (o *Orchestrator) openFrameSource() (frameSource, error) {
	source, err := o.openSource(o.cfg.Capture.Display)
	if err == nil {
		return source, nil
	}

	if errors.Is(err, capture.ErrDuplicationUnsupported) {
		bounds := o.displayBounds(o.cfg.Capture.Display)
		if capture.LikelyExclusiveFullscreen(o.fgProbe, bounds) {
			return nil, fmt.Errorf("%w: %v", ErrExclusiveFullscreen, err)
		}
	}
	return nil, err
}

func (o *Orchestrator) setIdleState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) clearSession(s State) {
	o.mu.Lock()
	o.state = s
	o.session = nil
	o.source = nil
	o.audioSrc = nil
	o.cancel = nil
	o.loopDone = nil
	o.mu.Unlock()
}

// validateOutput rejects containers too small to hold a single frame.
func validateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}
	if info.Size() < 1024 {
		return fmt.Errorf("recording failed: file too small (%d bytes)", info.Size())
	}
	return nil
}
