//go:build !linux && !windows && !darwin

package audio

func defaultLoopbackDevice() string {
	return ""
}

func buildCaptureArgs(device string) []string {
	return nil
}

const loopbackSupported = false
