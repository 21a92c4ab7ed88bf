package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	// ErrDeviceDisconnected means the loopback stream stopped on its own
	// during capture, which is how an unplugged or removed output device
	// shows up.
	ErrDeviceDisconnected = errors.New("audio device disconnected during capture")

	// ErrNotSupported means no loopback capture path exists on this platform.
	ErrNotSupported = errors.New("audio loopback capture not supported on this platform")
)

// readBlockSize is the granularity of reads from the capture stream.
const readBlockSize = 4096

// logLevel honors FFMPEG_LOGLEVEL, which the verbose flag sets so ffmpeg's
// own output reaches the terminal instead of being filtered to warnings.
func logLevel() string {
	if lv := os.Getenv("FFMPEG_LOGLEVEL"); lv != "" {
		return lv
	}
	return "warning"
}

// pcmStream is one running capture stream. stop must be safe to call after
// the stream has already ended.
type pcmStream interface {
	stop() error
}

// streamStarter opens a capture stream for a device, pushing PCM blocks to
// onBlock from the stream's own reader goroutine and calling onStop exactly
// once when the stream ends for any reason other than stop.
type streamStarter func(device string, onBlock func([]byte), onStop func(error)) (pcmStream, error)

// Loopback captures the system's default audio output into a growing PCM
// buffer. One recording at a time; the default device is re-resolved on
// every StartRecording.
type Loopback struct {
	ffmpegPath string
	start      streamStarter

	mu        sync.Mutex
	buf       *Buffer
	stream    pcmStream
	recording bool
	streamErr error
}

// NewLoopback creates a loopback source that shells out to ffmpeg.
func NewLoopback(ffmpegPath string) *Loopback {
	l := &Loopback{ffmpegPath: ffmpegPath, buf: &Buffer{}}
	l.start = l.startFFmpegStream
	return l
}

func newLoopbackWithStarter(start streamStarter) *Loopback {
	return &Loopback{buf: &Buffer{}, start: start}
}

// StartRecording opens a loopback stream on the current default output
// device and begins buffering audio.
func (l *Loopback) StartRecording() error {
	if !loopbackSupported {
		return ErrNotSupported
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recording {
		return fmt.Errorf("audio capture already running")
	}

	device := defaultLoopbackDevice()
	buf := &Buffer{}

	stream, err := l.start(device,
		buf.Append,
		func(err error) { l.onStreamStopped(err) },
	)
	if err != nil {
		return fmt.Errorf("failed to start audio capture on %s: %w", device, err)
	}

	l.buf = buf
	l.stream = stream
	l.recording = true
	l.streamErr = nil
	slog.Debug("audio loopback capture started", "device", device)
	return nil
}

// onStreamStopped records a spontaneous stream end as a device disconnect.
func (l *Loopback) onStreamStopped(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.recording {
		return
	}
	l.recording = false
	l.stream = nil
	if err != nil {
		l.streamErr = fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	} else {
		l.streamErr = ErrDeviceDisconnected
	}
	slog.Warn("audio loopback stream ended unexpectedly", "error", err)
}

// GetBufferedAudio returns a snapshot of everything captured so far without
// stopping the stream.
func (l *Loopback) GetBufferedAudio() []byte {
	l.mu.Lock()
	buf := l.buf
	l.mu.Unlock()
	return buf.Snapshot()
}

// StopRecording stops the stream and returns the complete buffered audio.
// Calling it when nothing is recording returns whatever is buffered and no
// error; a stream that died mid-capture surfaces its classified error.
func (l *Loopback) StopRecording() ([]byte, error) {
	l.mu.Lock()
	stream := l.stream
	l.stream = nil
	l.recording = false
	streamErr := l.streamErr
	l.streamErr = nil
	buf := l.buf
	l.mu.Unlock()

	if stream != nil {
		if err := stream.stop(); err != nil {
			slog.Debug("audio stream stop reported error", "error", err)
		}
	}

	return buf.Drain(), streamErr
}

// Err reports a classified stream failure without consuming the buffer.
func (l *Loopback) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamErr
}

// Recording reports whether a capture stream is currently running.
func (l *Loopback) Recording() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording
}

// ffmpegStream is the production pcmStream: an ffmpeg process writing s16le
// PCM to its stdout.
type ffmpegStream struct {
	cmd      *exec.Cmd
	stopOnce sync.Once
	stopped  chan struct{}
	waitErr  chan error
}

func (l *Loopback) startFFmpegStream(device string, onBlock func([]byte), onStop func(error)) (pcmStream, error) {
	args := buildCaptureArgs(device)
	if args == nil {
		return nil, ErrNotSupported
	}

	cmd := exec.Command(l.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		cmd:     cmd,
		stopped: make(chan struct{}),
		waitErr: make(chan error, 1),
	}

	go func() {
		block := make([]byte, readBlockSize)
		for {
			n, err := stdout.Read(block)
			if n > 0 {
				onBlock(block[:n])
			}
			if err != nil {
				break
			}
		}
	}()

	go func() {
		err := cmd.Wait()
		s.waitErr <- err
		select {
		case <-s.stopped:
			// Stopped by us, not a device failure.
		default:
			if err != nil && errors.Is(err, io.EOF) {
				err = nil
			}
			onStop(err)
		}
	}()

	return s, nil
}

func (s *ffmpegStream) stop() error {
	var out error
	s.stopOnce.Do(func() {
		close(s.stopped)

		if s.cmd.Process != nil {
			if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
				if killErr := s.cmd.Process.Kill(); killErr != nil {
					out = fmt.Errorf("failed to stop capture stream: %w", killErr)
				}
			}
		}

		select {
		case <-s.waitErr:
		case <-time.After(5 * time.Second):
			if s.cmd.Process != nil {
				if killErr := s.cmd.Process.Kill(); killErr != nil && out == nil {
					out = fmt.Errorf("failed to stop capture stream: %w", killErr)
				}
			}
			<-s.waitErr
		}
	})
	return out
}
