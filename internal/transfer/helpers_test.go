package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fetchrelay/internal/events"
	"fetchrelay/internal/media"
	"fetchrelay/internal/model"
	"fetchrelay/internal/queue"
	"fetchrelay/internal/sink"
	"fetchrelay/internal/store"
	"fetchrelay/internal/tree"
)

type fakeSink struct {
	mu         sync.Mutex
	ready      bool
	connectErr error
	sendErr    error
	signals    []sink.Signal
	delay      time.Duration
	items      []sink.Item
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.ready = true
	return nil
}

func (s *fakeSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSink) Send(ctx context.Context, item sink.Item, report func(sink.Signal)) error {
	s.mu.Lock()
	s.items = append(s.items, item)
	signals, delay, sendErr := s.signals, s.delay, s.sendErr
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	for _, sig := range signals {
		report(sig)
	}
	return sendErr
}

func (s *fakeSink) sent() []sink.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.Item(nil), s.items...)
}

type fakeMedia struct {
	info     media.Info
	probeErr error
	content  []byte
}

func (m *fakeMedia) Probe(context.Context, string) (media.Info, error) {
	return m.info, m.probeErr
}

func (m *fakeMedia) Remux(ctx context.Context, source, dst string, duration float64, report func(media.Progress)) error {
	report(media.Progress{Bytes: 0, Percent: 0})
	if err := os.WriteFile(dst, m.content, 0644); err != nil {
		return err
	}
	report(media.Progress{Bytes: int64(len(m.content)), Percent: 50})
	report(media.Progress{Bytes: int64(len(m.content)), Percent: 100})
	return nil
}

type fakeHistory struct {
	mu   sync.Mutex
	rows []model.History
}

func (h *fakeHistory) Save(row *model.History) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, *row)
	return nil
}

type harness struct {
	o       *Orchestrator
	store   *store.Store
	hub     *events.Hub
	sink    *fakeSink
	media   *fakeMedia
	history *fakeHistory
	public  string
	tmp     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	base := t.TempDir()
	h := &harness{
		store:   store.New(filepath.Join(base, "jobs.json")),
		hub:     events.NewHub(100),
		sink:    &fakeSink{},
		media:   &fakeMedia{content: []byte("remuxed")},
		history: &fakeHistory{},
		public:  filepath.Join(base, "public"),
		tmp:     filepath.Join(base, "tmp"),
	}

	for _, dir := range []string{h.public, h.tmp} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h.o = New(ctx, Options{
		PublicDir:       h.public,
		PublicURLPrefix: "/dl/",
		TmpDir:          h.tmp,
		SerializeRelays: true,
	}, Deps{
		Store:    h.store,
		Hub:      h.hub,
		Throttle: events.NewThrottle(time.Hour),
		Worker:   queue.NewWorker(ctx),
		Tree:     tree.New(h.public, 100),
		Sink:     h.sink,
		Media:    h.media,
		History:  h.history,
	})

	return h
}

// start records a job and subscribes before running it so no event is
// missed.
func (h *harness) start(t *testing.T, rawURL string, kind model.JobKind) (model.Job, *events.Subscription) {
	t.Helper()

	job := model.NewJob(rawURL, kind)
	if err := h.store.Create(job); err != nil {
		t.Fatal(err)
	}
	sub := h.hub.Subscribe(job.ID)

	ctx, cancel := context.WithCancel(h.o.ctx)
	h.o.track(job.ID, cancel)

	h.o.wg.Add(1)
	go h.o.run(ctx, job.ID)

	return job, sub
}

// localJob records a queued relay job for a file that already exists.
func (h *harness) localJob(t *testing.T, path string) model.Job {
	t.Helper()

	job := model.NewJob(model.LocalSourcePrefix+filepath.Base(path), model.KindUpload)
	job.LocalPath = path
	if err := h.store.Create(job); err != nil {
		t.Fatal(err)
	}
	return job
}

// await reads events until one of type typ arrives and returns them all.
func await(t *testing.T, sub *events.Subscription, typ string) []events.Event {
	t.Helper()

	var got []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			got = append(got, ev)
			if ev.Type == typ {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, got %v", typ, types(got))
			return nil
		}
	}
}

// collect reads events until done or error arrives.
func collect(t *testing.T, sub *events.Subscription) []events.Event {
	t.Helper()

	var got []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, ev)
			if ev.Type == events.EventDone || ev.Type == events.EventError {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for terminal event, got %v", types(got))
			return nil
		}
	}
}

// drain returns whatever is buffered without waiting.
func drain(sub *events.Subscription) []events.Event {
	var got []events.Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, ev)
		default:
			return got
		}
	}
}

func types(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func hasType(evs []events.Event, typ string) bool {
	for _, ev := range evs {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

// assertSubsequence checks that want appears in order within got.
func assertSubsequence(t *testing.T, got []events.Event, want ...string) {
	t.Helper()

	i := 0
	for _, ev := range got {
		if i < len(want) && ev.Type == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Fatalf("expected %v in order, got %v", want, types(got))
	}
}

func waitState(t *testing.T, s *store.Store, id string, want model.JobState) model.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := s.Get(id); ok && job.State == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}

	job, _ := s.Get(id)
	t.Fatalf("job %s: expected %s, got %s (%s)", id, want, job.State, job.Message)
	return job
}

var errSend = errors.New("send refused")
