//go:build darwin

package audio

// defaultLoopbackDevice names the avfoundation audio input. System-output
// loopback on macOS needs a virtual device (BlackHole or similar) selected
// as the default input; ":default" follows whatever the user routed.
func defaultLoopbackDevice() string {
	return ":default"
}

func buildCaptureArgs(device string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", logLevel(),
		"-f", "avfoundation",
		"-i", device,
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

const loopbackSupported = true
