// Package mediainfo inspects finished recordings: container duration and
// per-track layout, parsed in-process rather than by shelling out to a
// probe tool.
package mediainfo

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// TrackInfo describes one stream inside the container.
type TrackInfo struct {
	ID       uint32        `json:"id"`
	Type     string        `json:"type"`
	Codec    string        `json:"codec,omitempty"`
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
}

// Info is the probe result for one file.
type Info struct {
	Path       string        `json:"path"`
	SizeBytes  int64         `json:"size_bytes"`
	Duration   time.Duration `json:"duration"`
	Fragmented bool          `json:"fragmented"`
	Tracks     []TrackInfo   `json:"tracks"`
}

// Probe opens and parses an MP4 file.
func Probe(path string) (*Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	info, err := ProbeReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	info.Path = path
	info.SizeBytes = stat.Size()
	return info, nil
}

// ProbeReader parses MP4 data from a reader.
func ProbeReader(r io.Reader) (*Info, error) {
	parsed, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, err
	}
	if parsed.Moov == nil {
		return nil, fmt.Errorf("no moov box: not a finalized recording")
	}

	info := &Info{Fragmented: parsed.IsFragmented()}

	if mvhd := parsed.Moov.Mvhd; mvhd != nil && mvhd.Timescale > 0 {
		info.Duration = toDuration(mvhd.Duration, mvhd.Timescale)
	}

	for _, trak := range parsed.Moov.Traks {
		track := TrackInfo{}
		if trak.Tkhd != nil {
			track.ID = trak.Tkhd.TrackID
			track.Width = int(trak.Tkhd.Width >> 16)
			track.Height = int(trak.Tkhd.Height >> 16)
		}
		if trak.Mdia != nil {
			if hdlr := trak.Mdia.Hdlr; hdlr != nil {
				track.Type = handlerName(hdlr.HandlerType)
			}
			if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
				track.Duration = toDuration(mdhd.Duration, mdhd.Timescale)
			}
			track.Codec = sampleEntryType(trak)
		}

		info.Tracks = append(info.Tracks, track)
		if track.Duration > info.Duration {
			info.Duration = track.Duration
		}
	}

	return info, nil
}

func toDuration(units uint64, timescale uint32) time.Duration {
	return time.Duration(units) * time.Second / time.Duration(timescale)
}

func handlerName(handlerType string) string {
	switch handlerType {
	case "vide":
		return "video"
	case "soun":
		return "audio"
	default:
		return handlerType
	}
}

func sampleEntryType(trak *mp4.TrakBox) string {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return ""
	}
	children := trak.Mdia.Minf.Stbl.Stsd.Children
	if len(children) == 0 {
		return ""
	}
	return children[0].Type()
}

// HasTracks reports whether the container holds both expected streams, for
// post-recording validation.
func (i *Info) HasTracks(video, audio bool) bool {
	var haveVideo, haveAudio bool
	for _, t := range i.Tracks {
		switch t.Type {
		case "video":
			haveVideo = true
		case "audio":
			haveAudio = true
		}
	}
	if video && !haveVideo {
		return false
	}
	if audio && !haveAudio {
		return false
	}
	return true
}
