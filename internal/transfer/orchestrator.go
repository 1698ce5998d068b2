// Package transfer drives jobs from submission to a terminal state: it
// fetches the source, persists or relays the artifact and reports progress
// to subscribers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"fetchrelay/internal/events"
	"fetchrelay/internal/logger"
	"fetchrelay/internal/media"
	"fetchrelay/internal/metrics"
	"fetchrelay/internal/model"
	"fetchrelay/internal/queue"
	"fetchrelay/internal/sink"
	"fetchrelay/internal/store"
	"fetchrelay/internal/tree"
	"fetchrelay/internal/util"

	"go.uber.org/zap"
)

// Checkpoint names a point where a relay consults the cancellation state.
type Checkpoint string

const (
	BeforeConnect Checkpoint = "beforeConnect"
	BeforeRelay   Checkpoint = "beforeRelay"
	AfterRelay    Checkpoint = "afterRelay"
)

const (
	phaseDownload = "download"
	phaseUpload   = "upload"

	cancelledMessage = "cancelled"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSinkUnavailable = errors.New("relay sink not connected")

	errAborted = errors.New("job aborted")
)

type HistoryRecorder interface {
	Save(h *model.History) error
}

type Options struct {
	PublicDir       string
	PublicURLPrefix string
	TmpDir          string
	SerializeRelays bool
}

type Deps struct {
	Store    *store.Store
	Hub      *events.Hub
	Throttle *events.Throttle
	Worker   *queue.Worker
	Tree     *tree.Builder
	Sink     sink.Sink
	Media    media.Tool
	Fetcher  Fetcher
	History  HistoryRecorder
}

type Request struct {
	SourceURL    string
	SaveToPublic bool
	FileName     string
}

type Orchestrator struct {
	ctx  context.Context
	opts Options

	store    *store.Store
	hub      *events.Hub
	throttle *events.Throttle
	worker   *queue.Worker
	tree     *tree.Builder
	sink     sink.Sink
	media    media.Tool
	fetcher  Fetcher
	history  HistoryRecorder

	now            func() time.Time
	fallbackTick   time.Duration
	fallbackQuiet  time.Duration
	checkpointHook func(id string, cp Checkpoint)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func New(ctx context.Context, opts Options, deps Deps) *Orchestrator {
	o := &Orchestrator{
		ctx:           ctx,
		opts:          opts,
		store:         deps.Store,
		hub:           deps.Hub,
		throttle:      deps.Throttle,
		worker:        deps.Worker,
		tree:          deps.Tree,
		sink:          deps.Sink,
		media:         deps.Media,
		fetcher:       deps.Fetcher,
		history:       deps.History,
		now:           time.Now,
		fallbackTick:  fallbackTick,
		fallbackQuiet: fallbackQuiet,
		cancels:       make(map[string]context.CancelFunc),
	}

	if o.sink == nil {
		o.sink = sink.None{}
	}
	if o.fetcher == nil {
		o.fetcher = NewHTTPFetcher()
	}
	if o.throttle == nil {
		o.throttle = events.NewThrottle(750 * time.Millisecond)
	}
	if o.worker == nil {
		o.worker = queue.NewWorker(ctx)
	}
	if o.tree == nil {
		o.tree = tree.New(opts.PublicDir, 0)
	}
	if o.media == nil {
		o.media = media.NewFFmpeg("ffmpeg", "ffprobe", time.Minute)
	}

	return o
}

func (o *Orchestrator) Sink() sink.Sink {
	return o.sink
}

// Submit validates req, records a queued job and starts it in the
// background.
func (o *Orchestrator) Submit(req Request) (model.Job, error) {
	raw := strings.TrimSpace(req.SourceURL)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Job{}, fmt.Errorf("%w: fileUrl must be an http(s) URL", ErrInvalidRequest)
	}

	kind := model.KindUpload
	if req.SaveToPublic {
		kind = model.KindDownload
	}

	job := model.NewJob(raw, kind)
	job.RequestedName = sanitizeName(req.FileName)

	if err := o.store.Create(job); err != nil {
		return model.Job{}, err
	}

	metrics.RecordJobStarted(string(kind))
	logger.Log.Info("job accepted",
		zap.String("job", job.ID),
		zap.String("kind", string(kind)),
		zap.String("source", raw))

	ctx, cancel := context.WithCancel(o.ctx)
	o.track(job.ID, cancel)

	o.wg.Add(1)
	go o.run(ctx, job.ID)

	return job, nil
}

// EnqueueLocal queues one relay job per file at or under rel in the public
// tree, in path order.
func (o *Orchestrator) EnqueueLocal(rel string) ([]model.Job, error) {
	files, err := o.tree.CollectFiles(rel)
	if err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(files))
	for _, f := range files {
		job := model.NewJob(model.LocalSourcePrefix+f.Rel, model.KindUpload)
		job.LocalPath = f.Abs

		if err := o.store.Create(job); err != nil {
			return jobs, err
		}

		metrics.RecordJobStarted(string(job.Kind))
		o.enqueueRelay(job.ID, f.Abs, 0)
		jobs = append(jobs, job)
	}

	logger.Log.Info("directory relay queued",
		zap.String("path", rel),
		zap.Int("files", len(jobs)))

	return jobs, nil
}

// Resume re-queues relay jobs whose artifact is already on disk, oldest
// first. It runs once at startup after store reconciliation.
func (o *Orchestrator) Resume() int {
	list := o.store.List()
	slices.Reverse(list)

	n := 0
	for _, job := range list {
		if job.Kind != model.KindUpload || job.LocalPath == "" {
			continue
		}
		if job.State != model.StateQueued && job.State != model.StateDownloaded {
			continue
		}

		if _, err := os.Stat(job.LocalPath); err != nil {
			o.fail(job.ID, "", fmt.Errorf("artifact missing: %w", err))
			continue
		}

		o.enqueueRelay(job.ID, job.LocalPath, 0)
		n++
	}

	if n > 0 {
		logger.Log.Info("relay jobs resumed", zap.Int("count", n))
	}

	return n
}

// Cancel stops a queued or running job. Downloads are interrupted; a relay
// already handed to the sink stops at its next checkpoint.
func (o *Orchestrator) Cancel(id string) (model.Job, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if job.State.IsTerminal() {
		return job, fmt.Errorf("%w: job already %s", store.ErrInvalidTransition, job.State)
	}

	prev := job.State
	o.worker.MarkCancelled(id)
	o.worker.CancelQueued(id)
	o.cancelDownload(id)

	job, err := o.store.Transition(id, model.StateCancelled, func(j *model.Job) {
		j.Message = cancelledMessage
	})
	if err != nil {
		return job, err
	}

	if !prev.IsActive() {
		o.cleanup(id, job.LocalPath)
	}

	o.hub.Publish(id, events.EventStatus, map[string]any{"status": model.StateCancelled})
	o.finish(job, 0)

	return job, nil
}

// CancelAll clears the relay queue and cancels every non-terminal job. It
// returns the ids it cancelled.
func (o *Orchestrator) CancelAll() []string {
	removed := o.worker.CancelAll()
	logger.Log.Info("relay queue cleared", zap.Int("removed", len(removed)))

	var cancelled []string
	for _, job := range o.store.List() {
		if job.State.IsTerminal() {
			continue
		}
		if _, err := o.Cancel(job.ID); err == nil {
			cancelled = append(cancelled, job.ID)
		}
	}

	return cancelled
}

// Delete removes a job that is not moving bytes. Temporary artifacts are
// removed; files inside the public tree are kept.
func (o *Orchestrator) Delete(id string) error {
	job, ok := o.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if job.State.IsActive() {
		return fmt.Errorf("%w: %s is %s", store.ErrJobActive, id, job.State)
	}

	o.worker.CancelQueued(id)
	o.cancelDownload(id)
	o.cleanup(id, job.LocalPath)

	if _, err := o.store.Delete(id); err != nil {
		return err
	}

	o.hub.Drop(id)
	o.throttle.Forget(id)
	o.worker.Forget(id)

	logger.Log.Info("job deleted", zap.String("job", id))
	return nil
}

func (o *Orchestrator) Snapshot() model.WorkerSnapshot {
	return model.WorkerSnapshot{
		ActiveJob:   o.worker.ActiveID(),
		Pending:     o.worker.Pending(),
		SinkName:    o.sink.Name(),
		SinkReady:   o.sink.Ready(),
		Subscribers: o.hub.Count(),
		Jobs:        o.store.Len(),
	}
}

// Wait blocks until every background job goroutine and the relay worker
// have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	o.worker.Wait()
}

func (o *Orchestrator) run(ctx context.Context, id string) {
	defer o.wg.Done()
	defer o.untrack(id)

	job, ok := o.store.Get(id)
	if !ok {
		return
	}

	dl, err := o.download(ctx, job)
	if err != nil {
		o.fail(id, dl.path, err)
		return
	}
	o.untrack(id)

	if job.Kind == model.KindDownload {
		o.publishSaved(id, dl)
		return
	}

	if o.opts.SerializeRelays {
		<-o.enqueueRelay(id, dl.path, dl.bps)
		return
	}

	_ = o.relay(o.ctx, id, dl.path, dl.bps)
}

func (o *Orchestrator) enqueueRelay(id, path string, bps int64) <-chan struct{} {
	return o.worker.Enqueue(id, func(ctx context.Context) error {
		return o.relay(ctx, id, path, bps)
	})
}

func (o *Orchestrator) publishSaved(id string, dl download) {
	job, ok := o.transition(id, model.StateDone, func(j *model.Job) {
		j.Percent = 100
	})
	if !ok {
		return
	}

	rel := util.RelSlash(o.opts.PublicDir, dl.path)
	o.hub.Publish(id, events.EventDownloadSaved, map[string]any{
		"path":      dl.path,
		"size":      dl.size,
		"publicUrl": util.PublicURL(o.opts.PublicURLPrefix, rel),
	})
	o.hub.Publish(id, events.EventDone, map[string]any{"success": true})
	o.finish(job, dl.size)
}

func (o *Orchestrator) transition(id string, to model.JobState, fn func(*model.Job)) (model.Job, bool) {
	job, err := o.store.Transition(id, to, fn)
	if err != nil {
		logger.Log.Debug("transition skipped",
			zap.String("job", id),
			zap.String("to", string(to)),
			zap.Error(err))
		return job, false
	}

	return job, true
}

func (o *Orchestrator) checkpoint(id string, cp Checkpoint) bool {
	if o.checkpointHook != nil {
		o.checkpointHook(id, cp)
	}

	if o.aborted(id) {
		logger.Log.Info("job stopped at checkpoint",
			zap.String("job", id),
			zap.String("checkpoint", string(cp)))
		return true
	}

	return false
}

// aborted reports whether the job was removed or cancelled.
func (o *Orchestrator) aborted(id string) bool {
	job, ok := o.store.Get(id)
	if !ok {
		return true
	}
	return job.State == model.StateCancelled || o.worker.IsCancelled(id)
}

// fail moves the job to error and reports err, unless it was cancelled or
// removed in the meantime.
func (o *Orchestrator) fail(id, path string, err error) {
	o.cleanup(id, path)

	if errors.Is(err, errAborted) || o.aborted(id) {
		logger.Log.Debug("job aborted", zap.String("job", id), zap.Error(err))
		return
	}

	if o.ctx.Err() != nil {
		logger.Log.Info("job interrupted by shutdown", zap.String("job", id))
		return
	}

	msg := err.Error()
	job, ok := o.transition(id, model.StateError, func(j *model.Job) {
		j.Message = msg
	})
	if !ok {
		return
	}

	logger.Log.Warn("job failed",
		zap.String("job", id),
		zap.Error(err))

	o.hub.Publish(id, events.EventError, map[string]any{"message": msg})
	o.finish(job, 0)
}

// cleanup removes a temporary artifact. Anything inside the public tree is
// left in place.
func (o *Orchestrator) cleanup(id, path string) {
	if path == "" {
		return
	}

	if util.IsWithin(o.opts.PublicDir, path) {
		logger.Log.Debug("cleanup skipped inside public dir",
			zap.String("job", id),
			zap.String("path", path))
		return
	}

	if err := util.RemoveIfExists(path); err != nil {
		logger.Log.Warn("cleanup failed",
			zap.String("job", id),
			zap.Error(err))
		return
	}

	logger.Log.Debug("temporary artifact removed",
		zap.String("job", id),
		zap.String("path", path))
}

func (o *Orchestrator) finish(job model.Job, size int64) {
	o.throttle.Forget(job.ID)
	o.worker.Forget(job.ID)

	elapsed := o.now().Sub(time.UnixMilli(job.CreatedAt))
	metrics.RecordJobFinished(string(job.Kind), string(job.State), elapsed)

	if o.history != nil {
		h := &model.History{
			JobID:      job.ID,
			SourceRef:  job.SourceRef,
			Kind:       job.Kind,
			State:      job.State,
			Size:       size,
			DurationMs: elapsed.Milliseconds(),
			ErrMsg:     job.Message,
			FinishedAt: o.now(),
		}
		if err := o.history.Save(h); err != nil {
			logger.Log.Warn("failed to record history",
				zap.String("job", job.ID),
				zap.Error(err))
		}
	}

	logger.Log.Info("job finished",
		zap.String("job", job.ID),
		zap.String("state", string(job.State)),
		zap.Duration("elapsed", elapsed))
}

// progress forwards a progress update through the throttle. Percent -1
// means the total is unknown.
func (o *Orchestrator) progress(id, phase string, percent int, payload map[string]any) {
	if !o.throttle.Allow(id, phase, percent) {
		return
	}

	if percent >= 0 {
		_, _ = o.store.Update(id, func(j *model.Job) {
			if !j.State.IsTerminal() && percent > j.Percent {
				j.Percent = percent
			}
		})
	}

	eventType := events.EventDownloadProgress
	if phase == phaseUpload {
		eventType = events.EventUploadProgress
	}
	o.hub.Publish(id, eventType, payload)
}

func (o *Orchestrator) track(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[id] = cancel
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	delete(o.cancels, id)
	o.mu.Unlock()

	if ok {
		cancel()
	}
}

func (o *Orchestrator) cancelDownload(id string) {
	o.untrack(id)
}

// displayName is the name the sink sees for a job's artifact.
func (o *Orchestrator) displayName(job model.Job, path string) string {
	if strings.HasPrefix(job.SourceRef, model.LocalSourcePrefix) || job.Kind == model.KindDownload {
		return filepath.Base(path)
	}

	return withExt(artifactName(job.RequestedName, job.SourceRef, o.now()), filepath.Ext(path))
}
