package audio

import "time"

// Fixed PCM format for loopback capture: s16le, 48kHz, stereo. The encoder
// computes stream timestamps from byte counts against this format, so it is
// a package constant rather than configuration.
const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 2

	BytesPerSecond = SampleRate * Channels * BytesPerSample
)

// Duration converts a PCM byte count to its play time.
func Duration(bytes int) time.Duration {
	return time.Duration(int64(bytes) * int64(time.Second) / int64(BytesPerSecond))
}
