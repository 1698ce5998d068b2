package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"fetchrelay/internal/logger"

	"go.uber.org/zap"
)

const (
	progressTimePrefix = "out_time_us="
	progressSizePrefix = "total_size="
	progressEndLine    = "progress=end"

	growthScale = 64 << 20
	growthCap   = 95
)

type FFmpeg struct {
	FFmpegPath   string
	FFprobePath  string
	StallTimeout time.Duration
}

func NewFFmpeg(ffmpegPath, ffprobePath string, stallTimeout time.Duration) *FFmpeg {
	return &FFmpeg{
		FFmpegPath:   ffmpegPath,
		FFprobePath:  ffprobePath,
		StallTimeout: stallTimeout,
	}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f *FFmpeg) Probe(ctx context.Context, source string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height,duration:format=duration",
		"-of", "json",
		source,
	)

	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("failed to run ffprobe: %w", err)
	}

	return parseProbe(out)
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var info Info
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.DurationSeconds = d
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}

	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
		info.DurationSeconds = d
	}

	return info, nil
}

// Remux copies packets from source into dst without re-encoding. The
// container follows dst's extension. A stall monitor kills the process when
// dst stops growing for StallTimeout.
func (f *FFmpeg) Remux(ctx context.Context, source, dst string, duration float64, report func(Progress)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.FFmpegPath, remuxArgs(source, dst)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	stalled := make(chan struct{})
	if f.StallTimeout > 0 {
		go watchGrowth(ctx, dst, f.StallTimeout, func() {
			close(stalled)
			cancel()
		})
	}

	parseProgress(stdout, duration, report)
	err = cmd.Wait()

	select {
	case <-stalled:
		return fmt.Errorf("%w: no output for %s", ErrStalled, f.StallTimeout)
	default:
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		logger.Log.Warn("ffmpeg failed",
			zap.String("source", source),
			zap.String("stderr", msg))
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	return nil
}

func remuxArgs(source, dst string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-c", "copy",
	}

	// dst may carry a .part suffix, so the muxer is named explicitly.
	target := strings.TrimSuffix(strings.ToLower(dst), ".part")
	if strings.HasSuffix(target, "."+ContainerMP4) {
		args = append(args, "-bsf:a", "aac_adtstoasc", "-movflags", "+faststart", "-f", "mp4")
	} else {
		args = append(args, "-f", "matroska")
	}

	return append(args, "-progress", "pipe:1", "-nostats", dst)
}

// parseProgress reads ffmpeg -progress key=value records. Percent comes from
// out_time_us against duration, or from output growth when duration is
// unknown.
func parseProgress(r io.Reader, duration float64, report func(Progress)) {
	scanner := bufio.NewScanner(r)

	var cur Progress
	cur.Percent = -1

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, progressTimePrefix):
			us, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
			if err != nil {
				continue
			}
			cur.OutTimeUs = us
		case strings.HasPrefix(line, progressSizePrefix):
			n, err := strconv.ParseInt(strings.TrimPrefix(line, progressSizePrefix), 10, 64)
			if err != nil {
				continue
			}
			cur.Bytes = n
		case strings.HasPrefix(line, "progress="):
			if line == progressEndLine {
				cur.Percent = 100
			} else {
				cur.Percent = estimatePercent(cur, duration)
			}
			if report != nil {
				report(cur)
			}
		}
	}
}

func estimatePercent(p Progress, duration float64) int {
	if duration > 0 {
		ratio := float64(p.OutTimeUs) / 1e6 / duration
		return int(math.Min(99, math.Max(0, ratio*100)))
	}

	if p.Bytes <= 0 {
		return -1
	}

	grown := 1 - 1/(1+float64(p.Bytes)/growthScale)
	return int(growthCap * grown)
}
