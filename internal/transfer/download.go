package transfer

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"fetchrelay/internal/events"
	"fetchrelay/internal/logger"
	"fetchrelay/internal/media"
	"fetchrelay/internal/metrics"
	"fetchrelay/internal/model"
	"fetchrelay/internal/util"

	"go.uber.org/zap"
)

type download struct {
	path    string
	size    int64
	elapsed time.Duration
	bps     int64
	sum     string
}

// download acquires the job's source into its artifact file. On failure the
// returned download still carries the path of any partial file.
func (o *Orchestrator) download(ctx context.Context, job model.Job) (download, error) {
	id := job.ID
	if _, ok := o.transition(id, model.StateDownloading, func(j *model.Job) { j.Percent = 0 }); !ok {
		return download{}, errAborted
	}
	o.hub.Publish(id, events.EventStatus, map[string]any{"status": model.StateDownloading})

	start := o.now()

	var (
		dst  string
		name string
		err  error
	)

	segmented := media.IsSegmented(urlPath(job.SourceRef), "")
	if !segmented {
		stream, openErr := o.fetcher.Open(ctx, job.SourceRef)
		if openErr != nil {
			return download{}, openErr
		}

		if media.IsSegmented("", stream.ContentType) {
			_ = stream.Body.Close()
			segmented = true
		} else {
			dst, name, err = o.fetchStream(job, stream)
		}
	}

	if segmented {
		dst, name, err = o.remux(ctx, job)
	}

	if err != nil {
		return download{path: dst}, err
	}

	if job.Kind == model.KindDownload {
		if dst, err = publishPart(o.opts.PublicDir, dst, name); err != nil {
			return download{path: dst}, err
		}
	}

	info, err := os.Stat(dst)
	if err != nil {
		return download{path: dst}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	elapsed := max(o.now().Sub(start), time.Millisecond)
	dl := download{
		path:    dst,
		size:    info.Size(),
		elapsed: elapsed,
		bps:     int64(math.Round(float64(info.Size()) / elapsed.Seconds())),
	}

	if dl.sum, err = util.FileChecksum(dst); err != nil {
		logger.Log.Warn("failed to checksum artifact", zap.String("job", id), zap.Error(err))
	}

	metrics.AddBytesDownloaded(dl.size)

	if _, ok := o.transition(id, model.StateDownloaded, func(j *model.Job) {
		j.LocalPath = dst
		j.Percent = 100
	}); !ok {
		return dl, errAborted
	}

	o.progress(id, phaseDownload, 100, map[string]any{
		"received": dl.size,
		"total":    dl.size,
		"percent":  100,
	})
	o.hub.Publish(id, events.EventDownloadComplete, map[string]any{
		"path":        dst,
		"size":        dl.size,
		"downloadMs":  elapsed.Milliseconds(),
		"downloadBps": dl.bps,
		"sha256":      dl.sum,
	})

	logger.Log.Info("download complete",
		zap.String("job", id),
		zap.String("path", dst),
		zap.Int64("size", dl.size),
		zap.Duration("elapsed", elapsed))

	return dl, nil
}

func (o *Orchestrator) fetchStream(job model.Job, stream *Stream) (string, string, error) {
	defer func() { _ = stream.Body.Close() }()

	f, name, err := o.createArtifact(job, "")
	if err != nil {
		return "", "", err
	}
	dst := f.Name()

	o.hub.Publish(job.ID, events.EventDownloadStart, map[string]any{
		"method": "stream",
		"total":  knownTotal(stream.Total),
	})

	pr := &progressReader{
		r: stream.Body,
		report: func(received int64) {
			o.downloadProgress(job.ID, received, stream.Total)
		},
	}

	_, copyErr := io.Copy(f, pr)
	closeErr := f.Close()

	if copyErr != nil {
		return dst, name, fmt.Errorf("%w: %w", ErrUpstream, copyErr)
	}
	if closeErr != nil {
		return dst, name, fmt.Errorf("failed to close artifact: %w", closeErr)
	}

	return dst, name, nil
}

func (o *Orchestrator) remux(ctx context.Context, job model.Job) (string, string, error) {
	info, err := o.media.Probe(ctx, job.SourceRef)
	if err != nil {
		logger.Log.Warn("probe failed, remuxing into mkv",
			zap.String("job", job.ID),
			zap.Error(err))
		info = media.Info{}
	}

	container := info.Container()
	f, name, err := o.createArtifact(job, "."+container)
	if err != nil {
		return "", "", err
	}
	dst := f.Name()
	_ = f.Close()

	o.hub.Publish(job.ID, events.EventDownloadStart, map[string]any{
		"method":    "remux",
		"container": container,
		"duration":  info.DurationSeconds,
	})

	err = o.media.Remux(ctx, job.SourceRef, dst, info.DurationSeconds, func(p media.Progress) {
		if p.Percent < 0 {
			o.progress(job.ID, phaseDownload, -1, map[string]any{"received": p.Bytes, "total": nil})
			return
		}
		o.progress(job.ID, phaseDownload, p.Percent, map[string]any{
			"received": p.Bytes,
			"percent":  p.Percent,
		})
	})
	if err != nil {
		return dst, name, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	return dst, name, nil
}

func (o *Orchestrator) downloadProgress(id string, received, total int64) {
	if total <= 0 {
		o.progress(id, phaseDownload, -1, map[string]any{"received": received, "total": nil})
		return
	}

	pct := int(math.Min(100, math.Round(float64(received)/float64(total)*100)))
	o.progress(id, phaseDownload, pct, map[string]any{
		"received": received,
		"total":    total,
		"percent":  pct,
	})
}

// createArtifact opens the file a job downloads into along with the name it
// should be published under. Persist-only jobs write <name>.part in the public
// dir, relays a temp file. ext, when set, replaces the derived extension.
func (o *Orchestrator) createArtifact(job model.Job, ext string) (*os.File, string, error) {
	name := artifactName(job.RequestedName, job.SourceRef, o.now())
	if ext != "" {
		name = withExt(name, ext)
	}

	if job.Kind == model.KindDownload {
		f, err := createUnique(o.opts.PublicDir, name+partSuffix)
		return f, name, err
	}

	f, err := createRelayTemp(o.opts.TmpDir, filepath.Ext(name), o.now())
	return f, name, err
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}

func knownTotal(total int64) any {
	if total <= 0 {
		return nil
	}
	return total
}
