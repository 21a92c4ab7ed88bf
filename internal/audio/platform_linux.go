//go:build linux

package audio

import (
	"os/exec"
	"strings"
)

// defaultLoopbackDevice resolves the monitor source of the current default
// sink. Resolved at recording start, never cached across sessions, so a
// changed default output is picked up by the next recording.
func defaultLoopbackDevice() string {
	out, err := exec.Command("pactl", "get-default-sink").Output()
	if err != nil {
		return "default"
	}
	sink := strings.TrimSpace(string(out))
	if sink == "" {
		return "default"
	}
	return sink + ".monitor"
}

func buildCaptureArgs(device string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", logLevel(),
		"-f", "pulse",
		"-i", device,
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

const loopbackSupported = true
