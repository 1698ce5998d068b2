package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fetchrelay/internal/auth"
	"fetchrelay/internal/config"
	"fetchrelay/internal/db"
	"fetchrelay/internal/events"
	"fetchrelay/internal/logger"
	"fetchrelay/internal/media"
	"fetchrelay/internal/queue"
	"fetchrelay/internal/repository"
	"fetchrelay/internal/sink"
	"fetchrelay/internal/sink/dropbox"
	"fetchrelay/internal/sink/gdrive"
	"fetchrelay/internal/store"
	"fetchrelay/internal/transfer"
	"fetchrelay/internal/tree"

	"go.uber.org/zap"
)

const sinkConnectTimeout = 30 * time.Second

// Daemon owns the job store, the event hub and the orchestrator for one
// running server.
type Daemon struct {
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc

	store    *store.Store
	hub      *events.Hub
	tree     *tree.Builder
	orch     *transfer.Orchestrator
	histRepo *repository.HistoryRepository
}

func New(cfg *config.Config) (*Daemon, error) {
	if err := resolvePaths(cfg); err != nil {
		return nil, err
	}

	if cfg.Username == "" || cfg.Password == "" {
		logger.Log.Warn("username or password not configured, authenticated routes will refuse every request")
	}

	for _, dir := range []string{cfg.PublicDir, cfg.TmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := db.Init(cfg.DBPath); err != nil {
		return nil, err
	}

	st := store.New(cfg.JobsPath)
	if err := st.Load(); err != nil {
		return nil, err
	}

	for _, job := range st.Reconcile() {
		logger.Log.Info("job reconciled after restart",
			zap.String("job", job.ID),
			zap.String("state", string(job.State)))
	}

	sk, err := newSink(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		store:    st,
		hub:      events.NewHub(cfg.MaxSubscribers),
		tree:     tree.New(cfg.PublicDir, cfg.TreeMaxNodes),
		histRepo: repository.NewHistoryRepository(),
	}
	d.tree.SetIgnore(cfg.RelayIgnore)

	d.orch = transfer.New(ctx, transfer.Options{
		PublicDir:       cfg.PublicDir,
		PublicURLPrefix: cfg.PublicURLPrefix,
		TmpDir:          cfg.TmpDir,
		SerializeRelays: cfg.SerializeRelays,
	}, transfer.Deps{
		Store:    st,
		Hub:      d.hub,
		Throttle: events.NewThrottle(cfg.ProgressEvery),
		Worker:   queue.NewWorker(ctx),
		Tree:     d.tree,
		Sink:     sk,
		Media:    media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.StallTimeout),
		History:  d.histRepo,
	})

	return d, nil
}

// Start connects a sink with a saved session and re-queues relays that were
// pending when the previous process stopped.
func (d *Daemon) Start() {
	sk := d.orch.Sink()
	if sk.Name() != "none" && auth.HasSession(sk.Name()) {
		ctx, cancel := context.WithTimeout(d.ctx, sinkConnectTimeout)
		if err := sk.Connect(ctx); err != nil {
			logger.Log.Warn("relay sink not connected",
				zap.String("sink", sk.Name()),
				zap.Error(err))
		} else {
			logger.Log.Info("relay sink connected", zap.String("sink", sk.Name()))
		}
		cancel()
	}

	d.orch.Resume()
}

// Close stops background work and waits for it before closing the history
// database.
func (d *Daemon) Close() {
	d.cancel()
	d.orch.Wait()

	if err := db.Close(); err != nil {
		logger.Log.Warn("failed to close db", zap.Error(err))
	}
}

func newSink(cfg *config.Config) (sink.Sink, error) {
	switch cfg.Sink {
	case auth.ProviderGDrive:
		return gdrive.New(cfg.SinkTarget), nil
	case auth.ProviderDropbox:
		return dropbox.New(cfg.SinkTarget), nil
	case "", "none":
		return sink.None{}, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// resolvePaths anchors relative state paths in the config dir.
func resolvePaths(cfg *config.Config) error {
	for _, p := range []*string{&cfg.TmpDir, &cfg.JobsPath, &cfg.DBPath} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}

		dir, err := config.Dir()
		if err != nil {
			return err
		}
		*p = filepath.Join(dir, *p)
	}

	abs, err := filepath.Abs(cfg.PublicDir)
	if err != nil {
		return fmt.Errorf("invalid public dir: %w", err)
	}
	cfg.PublicDir = abs

	return nil
}
