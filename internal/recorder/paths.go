package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutputUnavailable categorizes destination directory failures for the
// host: the raw OS error stays wrapped underneath.
var ErrOutputUnavailable = errors.New("output location not writable")

// maxContextLength caps the sanitized context portion of a filename.
const maxContextLength = 64

const timestampLayout = "2006-01-02_15-04-05"

// SanitizeContext strips filesystem-invalid characters from a context name
// (usually the running game's title) and caps its length. An empty result
// falls back to "Capture".
func SanitizeContext(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(b.String())
	clean = strings.Trim(clean, ".")
	clean = strings.ReplaceAll(clean, " ", "_")
	if len(clean) > maxContextLength {
		clean = clean[:maxContextLength]
	}
	if clean == "" {
		clean = "Capture"
	}
	return clean
}

// OutputPath builds `<context>_<timestamp>.<ext>` inside dir, creating the
// directory on demand.
func OutputPath(dir, context, ext string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
	}

	name := fmt.Sprintf("%s_%s.%s", SanitizeContext(context), now.Format(timestampLayout), ext)
	return filepath.Join(dir, name), nil
}
