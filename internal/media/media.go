// Package media wraps ffprobe and ffmpeg for probing sources and remuxing
// segmented streams into a single file.
package media

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
)

const (
	ContainerMP4 = "mp4"
	ContainerMKV = "mkv"
)

var ErrStalled = errors.New("remux stalled")

var videoExts = []string{".mp4", ".mkv", ".mov", ".webm", ".avi", ".flv", ".wmv", ".m4v"}

type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	AudioCodec      string
}

// Progress is one remux progress record. Percent is -1 while it cannot be
// estimated.
type Progress struct {
	OutTimeUs int64
	Bytes     int64
	Percent   int
}

type Tool interface {
	Probe(ctx context.Context, source string) (Info, error)
	Remux(ctx context.Context, source, dst string, duration float64, report func(Progress)) error
}

// Container picks a copy-only target: mp4 for h264/hevc video with aac, mp3
// or no audio, mkv for everything else.
func (i Info) Container() string {
	switch strings.ToLower(i.VideoCodec) {
	case "h264", "hevc", "h265":
	default:
		return ContainerMKV
	}

	switch strings.ToLower(i.AudioCodec) {
	case "", "aac", "mp3":
		return ContainerMP4
	default:
		return ContainerMKV
	}
}

func IsVideo(path string) bool {
	return slices.Contains(videoExts, strings.ToLower(filepath.Ext(path)))
}

// IsSegmented reports whether a URL path or content type refers to an HLS
// playlist.
func IsSegmented(urlPath, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(urlPath))
	if ext == ".m3u8" || ext == ".m3u" {
		return true
	}

	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "mpegurl")
}
