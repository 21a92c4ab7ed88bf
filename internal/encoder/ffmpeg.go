package encoder

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/capture"
)

const (
	finalizeTimeout = 10 * time.Second
	audioDialWait   = 5 * time.Second
)

// logLevel honors FFMPEG_LOGLEVEL, which the verbose flag sets so ffmpeg's
// own output reaches the terminal instead of being filtered to warnings.
func logLevel() string {
	if lv := os.Getenv("FFMPEG_LOGLEVEL"); lv != "" {
		return lv
	}
	return "warning"
}

// ffmpegSink pipes raw RGBA frames into ffmpeg stdin and PCM audio over a
// loopback TCP connection; ffmpeg muxes both into one faststart MP4.
type ffmpegSink struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	audioConn net.Conn
	audioErr  error
	audioOnce sync.Once
	audioL    net.Listener
	done      chan error
	stderr    *tailBuffer
	closeOnce sync.Once
	closeErr  error
}

func startFFmpegSink(cfg Config, bitrateKbps int) (*ffmpegSink, error) {
	audioL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("audio listener: %w", err)
	}
	frameRate := strconv.Itoa(cfg.FrameRate)
	args := []string{
		"-hide_banner",
		"-loglevel", logLevel(),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", frameRate,
		"-thread_queue_size", "512",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-thread_queue_size", "2048",
		"-i", fmt.Sprintf("tcp://%s", audioL.Addr().String()),
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", bitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", bitrateKbps*5/4),
		"-bufsize", fmt.Sprintf("%dk", bitrateKbps*2),
		"-pix_fmt", "yuv420p",
		"-r", frameRate,
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		"-movflags", "+faststart",
		"-y",
		cfg.OutputPath,
	}

	stderr := &tailBuffer{}
	cmd := exec.Command(cfg.FFmpegPath, args...)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		audioL.Close()
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		audioL.Close()
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	slog.Debug("encoder muxer started",
		"output", cfg.OutputPath,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"bitrate_kbps", bitrateKbps,
	)

	s := &ffmpegSink{
		cmd:    cmd,
		stdin:  stdin,
		audioL: audioL,
		done:   make(chan error, 1),
		stderr: stderr,
	}

	go func() {
		s.done <- cmd.Wait()
	}()

	return s, nil
}

// acceptAudio waits for ffmpeg to connect its audio input. Done lazily on the
// first audio write so video-only sessions never block on it.
func (s *ffmpegSink) acceptAudio() (net.Conn, error) {
	s.audioOnce.Do(func() {
		if tcpL, ok := s.audioL.(*net.TCPListener); ok {
			tcpL.SetDeadline(time.Now().Add(audioDialWait))
		}
		conn, err := s.audioL.Accept()
		if err != nil {
			s.audioErr = fmt.Errorf("muxer never opened its audio input: %w", err)
			return
		}
		s.audioConn = conn
	})
	return s.audioConn, s.audioErr
}

func (s *ffmpegSink) writeVideo(f *capture.Frame) error {
	// Row-by-row copy strips any stride padding from the frame buffer.
	for y := 0; y < f.Height(); y++ {
		if _, err := s.stdin.Write(f.RowBytes(y)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ffmpegSink) writeAudio(pcm []byte) error {
	conn, err := s.acceptAudio()
	if err != nil {
		return err
	}
	_, err = conn.Write(pcm)
	return err
}

func (s *ffmpegSink) finalize() error {
	s.closeOnce.Do(func() {
		// Closing both inputs tells ffmpeg to flush and write the trailer.
		if err := s.stdin.Close(); err != nil {
			s.closeErr = err
		}
		if s.audioConn != nil {
			s.audioConn.Close()
		}
		s.audioL.Close()

		select {
		case err := <-s.done:
			if err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("muxer exited with error: %w", err)
			}
		case <-time.After(finalizeTimeout):
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			<-s.done
			if s.closeErr == nil {
				s.closeErr = fmt.Errorf("muxer did not flush within %s", finalizeTimeout)
			}
		}
	})
	return s.closeErr
}

func (s *ffmpegSink) failureDetail() string {
	return s.stderr.Tail(300)
}

// tailBuffer retains ffmpeg stderr so failures can carry a readable reason.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *tailBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := strings.TrimSpace(b.buf.String())
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
