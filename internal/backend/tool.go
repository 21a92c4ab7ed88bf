package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RunScreenshotTool invokes the configured external screenshot utility with
// the output path as its single argument and waits for it to exit. The tool
// must have written the file by then; an empty or missing file counts as a
// failure so the caller can fall through to the next backend.
func RunScreenshotTool(tool, outputPath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, outputPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("screenshot tool %s failed: %w (%s)", tool, err, detail)
		}
		return fmt.Errorf("screenshot tool %s failed: %w", tool, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("screenshot tool %s produced no output file: %w", tool, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("screenshot tool %s produced an empty file", tool)
	}
	return nil
}
