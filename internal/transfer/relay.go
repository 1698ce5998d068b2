package transfer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fetchrelay/internal/events"
	"fetchrelay/internal/logger"
	"fetchrelay/internal/media"
	"fetchrelay/internal/metrics"
	"fetchrelay/internal/model"
	"fetchrelay/internal/sink"

	"go.uber.org/zap"
)

const (
	fallbackTick  = 1200 * time.Millisecond
	fallbackQuiet = 2 * time.Second
	fallbackCap   = 95
	minRelayBps   = 50 * 1024
)

// relay hands the artifact at path to the sink. It stops silently at any
// checkpoint once the job was cancelled or removed.
func (o *Orchestrator) relay(ctx context.Context, id, path string, downloadBps int64) error {
	if o.checkpoint(id, BeforeConnect) {
		o.cleanup(id, path)
		return nil
	}

	job, ok := o.store.Get(id)
	if !ok {
		return nil
	}

	if !o.sink.Ready() {
		if err := o.sink.Connect(ctx); err != nil {
			logger.Log.Warn("relay sink connect failed",
				zap.String("job", id),
				zap.String("sink", o.sink.Name()),
				zap.Error(err))
			o.fail(id, path, ErrSinkUnavailable)
			return err
		}
	}

	item := o.relayItem(ctx, job, path)

	if o.checkpoint(id, BeforeRelay) {
		o.cleanup(id, path)
		return nil
	}

	if _, ok := o.transition(id, model.StateUploading, func(j *model.Job) { j.Percent = 0 }); !ok {
		o.cleanup(id, path)
		return nil
	}

	method := o.sink.Name()
	o.hub.Publish(id, events.EventStatus, map[string]any{"status": model.StateUploading})
	o.hub.Publish(id, events.EventUploadStart, map[string]any{"method": method})

	rp := o.startRelayProgress(id, item.Size, downloadBps)
	err := o.sink.Send(ctx, item, rp.signal)
	rp.stop()

	if o.checkpoint(id, AfterRelay) {
		o.cleanup(id, path)
		return nil
	}

	if err != nil {
		o.fail(id, path, err)
		return err
	}

	job, ok = o.transition(id, model.StateDone, func(j *model.Job) { j.Percent = 100 })
	if !ok {
		o.cleanup(id, path)
		return nil
	}

	metrics.AddBytesRelayed(item.Size)
	o.progress(id, phaseUpload, 100, map[string]any{"percent": 100})
	o.hub.Publish(id, events.EventUploadComplete, map[string]any{"method": method})
	o.cleanup(id, path)
	o.hub.Publish(id, events.EventDone, map[string]any{"success": true})
	o.finish(job, item.Size)

	return nil
}

// relayItem describes the artifact for the sink. Matroska files always go
// as plain documents; other videos carry probed attributes when available.
func (o *Orchestrator) relayItem(ctx context.Context, job model.Job, path string) sink.Item {
	name := o.displayName(job, path)

	item := sink.Item{
		Path:    path,
		Name:    name,
		Caption: strings.TrimSpace(job.RequestedName),
	}
	if item.Caption == "" {
		item.Caption = displayStem(name)
	}

	if info, err := os.Stat(path); err == nil {
		item.Size = info.Size()
	}

	if strings.EqualFold(filepath.Ext(path), ".mkv") {
		item.ForceDocument = true
		return item
	}

	if !media.IsVideo(path) {
		return item
	}

	info, err := o.media.Probe(ctx, path)
	if err != nil {
		logger.Log.Warn("probe failed, relaying without media attributes",
			zap.String("job", job.ID),
			zap.Error(err))
		return item
	}

	if info.DurationSeconds > 0 && info.Width > 0 && info.Height > 0 {
		item.Media = &info
	}

	return item
}

// relayProgress turns sink signals into upload progress and, while the
// sink stays quiet, synthesizes a slowly advancing estimate.
type relayProgress struct {
	o    *Orchestrator
	id   string
	size int64
	est  time.Duration

	mu         sync.Mutex
	started    time.Time
	lastSignal time.Time
	lastPct    int

	stopCh chan struct{}
	done   chan struct{}
}

func (o *Orchestrator) startRelayProgress(id string, size, downloadBps int64) *relayProgress {
	rate := max(downloadBps, minRelayBps)
	est := max(time.Second, time.Duration(float64(size)/float64(rate)*float64(time.Second)))

	now := time.Now()
	rp := &relayProgress{
		o:          o,
		id:         id,
		size:       size,
		est:        est,
		started:    now,
		lastSignal: now,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	go rp.loop()
	return rp
}

func (rp *relayProgress) signal(sig sink.Signal) {
	p := sink.Normalize(sig, rp.size)
	pct := p.Percent()

	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.lastSignal = time.Now()

	if pct < 0 {
		rp.o.progress(rp.id, phaseUpload, -1, map[string]any{"received": p.Uploaded, "total": nil})
		return
	}

	if pct < rp.lastPct {
		return
	}
	rp.lastPct = pct

	rp.o.progress(rp.id, phaseUpload, pct, map[string]any{
		"percent":  pct,
		"received": p.Uploaded,
		"total":    p.Total,
	})
}

func (rp *relayProgress) loop() {
	defer close(rp.done)

	ticker := time.NewTicker(rp.o.fallbackTick)
	defer ticker.Stop()

	for {
		select {
		case <-rp.stopCh:
			return
		case <-ticker.C:
			rp.tick()
		}
	}
}

func (rp *relayProgress) tick() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if time.Since(rp.lastSignal) <= rp.o.fallbackQuiet || rp.lastPct >= fallbackCap {
		return
	}

	elapsed := time.Since(rp.started)
	rp.lastPct = synthPercent(elapsed, rp.est, rp.lastPct)

	rp.o.progress(rp.id, phaseUpload, rp.lastPct, map[string]any{
		"percent":   rp.lastPct,
		"elapsed":   elapsed.Milliseconds(),
		"estimated": true,
	})
}

// stop ends the fallback loop and waits for it, so no estimate can follow
// the terminal events.
func (rp *relayProgress) stop() {
	close(rp.stopCh)
	<-rp.done
}

// synthPercent advances at least one point past last, tracks elapsed/est
// when that is further along, and never exceeds fallbackCap.
func synthPercent(elapsed, est time.Duration, last int) int {
	pct := last + 1
	if est > 0 {
		pct = max(pct, int(float64(elapsed)/float64(est)*100))
	}
	return min(pct, fallbackCap)
}
