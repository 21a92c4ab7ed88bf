//go:build windows

package audio

// defaultLoopbackDevice names the DirectShow loopback device. Stock ffmpeg
// on Windows cannot open WASAPI loopback directly; the common setup is the
// virtual-audio-capturer DirectShow filter mirroring the default output.
func defaultLoopbackDevice() string {
	return "audio=virtual-audio-capturer"
}

func buildCaptureArgs(device string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", logLevel(),
		"-f", "dshow",
		"-i", device,
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

const loopbackSupported = true
