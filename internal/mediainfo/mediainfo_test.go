package mediainfo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
)

// initSegment builds a minimal valid MP4 with the requested tracks.
func initSegment(t *testing.T, mediaTypes ...string) []byte {
	t.Helper()
	seg := mp4.CreateEmptyInit()
	for _, mt := range mediaTypes {
		seg.AddEmptyTrack(90000, mt, "und")
	}

	var buf bytes.Buffer
	if err := seg.Encode(&buf); err != nil {
		t.Fatalf("encode init segment: %v", err)
	}
	return buf.Bytes()
}

func TestProbeReaderTracks(t *testing.T) {
	data := initSegment(t, "video", "audio")

	info, err := ProbeReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ProbeReader: %v", err)
	}

	if len(info.Tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(info.Tracks))
	}
	if info.Tracks[0].Type != "video" {
		t.Errorf("track 0 type = %q, want video", info.Tracks[0].Type)
	}
	if info.Tracks[1].Type != "audio" {
		t.Errorf("track 1 type = %q, want audio", info.Tracks[1].Type)
	}
	if !info.HasTracks(true, true) {
		t.Error("HasTracks(video, audio) = false")
	}
}

func TestProbeReaderNotMP4(t *testing.T) {
	if _, err := ProbeReader(strings.NewReader("definitely not an mp4")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProbeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	data := initSegment(t, "video")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Path != path {
		t.Errorf("path = %q, want %q", info.Path, path)
	}
	if info.SizeBytes != int64(len(data)) {
		t.Errorf("size = %d, want %d", info.SizeBytes, len(data))
	}
}

func TestProbeMissingFile(t *testing.T) {
	if _, err := Probe(filepath.Join(t.TempDir(), "absent.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHasTracksVideoOnly(t *testing.T) {
	data := initSegment(t, "video")
	info, err := ProbeReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ProbeReader: %v", err)
	}
	if !info.HasTracks(true, false) {
		t.Error("HasTracks(video) = false")
	}
	if info.HasTracks(true, true) {
		t.Error("HasTracks(video, audio) = true for a video-only file")
	}
}
