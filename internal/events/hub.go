// Package events fans job progress out to SSE subscribers.
package events

import (
	"sync"

	"fetchrelay/internal/metrics"
)

const (
	EventConnected        = "connected"
	EventStatus           = "status"
	EventDownloadStart    = "downloadStart"
	EventDownloadProgress = "downloadProgress"
	EventDownloadComplete = "downloadComplete"
	EventDownloadSaved    = "downloadSaved"
	EventUploadStart      = "uploadStart"
	EventUploadProgress   = "uploadProgress"
	EventUploadComplete   = "uploadComplete"
	EventDone             = "done"
	EventError            = "error"
)

const subscriberBuffer = 64

// Event is one SSE frame; Data is encoded as JSON by the writer.
type Event struct {
	Type string
	Data any
}

// Subscription is a single job's event stream. C is closed when the
// subscription is replaced, evicted or unsubscribed.
type Subscription struct {
	JobID string
	C     <-chan Event

	ch     chan Event
	seq    uint64
	closed bool
}

// Hub keeps at most one subscriber per job id. Publishing never blocks:
// a full subscriber buffer drops the event.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	seq     uint64
	maxSubs int
}

func NewHub(maxSubs int) *Hub {
	return &Hub{
		subs:    make(map[string]*Subscription),
		maxSubs: maxSubs,
	}
}

// Subscribe registers a stream for jobID, closing any previous one.
func (h *Hub) Subscribe(jobID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.seq++
	sub := &Subscription{JobID: jobID, C: ch, ch: ch, seq: h.seq}

	if prev, ok := h.subs[jobID]; ok {
		h.closeLocked(prev)
	} else if h.maxSubs > 0 && len(h.subs) >= h.maxSubs {
		h.evictOldestLocked()
	}

	h.subs[jobID] = sub
	count := len(h.subs)
	h.mu.Unlock()

	metrics.SetSSESubscribersActive(count)
	return sub
}

// Unsubscribe removes sub if it is still the registered stream for its job.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if cur, ok := h.subs[sub.JobID]; ok && cur == sub {
		delete(h.subs, sub.JobID)
	}
	h.closeLocked(sub)
	count := len(h.subs)
	h.mu.Unlock()

	metrics.SetSSESubscribersActive(count)
}

// Drop closes and removes the subscription registered for jobID, if any.
func (h *Hub) Drop(jobID string) {
	h.mu.Lock()
	if sub, ok := h.subs[jobID]; ok {
		delete(h.subs, jobID)
		h.closeLocked(sub)
	}
	count := len(h.subs)
	h.mu.Unlock()

	metrics.SetSSESubscribersActive(count)
}

func (h *Hub) Publish(jobID, eventType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	metrics.RecordSSEEvent(eventType)

	sub, ok := h.subs[jobID]
	if !ok || sub.closed {
		return
	}

	select {
	case sub.ch <- Event{Type: eventType, Data: data}:
	default:
		metrics.RecordSSEDrop()
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) closeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}

func (h *Hub) evictOldestLocked() {
	var oldest *Subscription
	for _, sub := range h.subs {
		if oldest == nil || sub.seq < oldest.seq {
			oldest = sub
		}
	}
	if oldest == nil {
		return
	}

	delete(h.subs, oldest.JobID)
	h.closeLocked(oldest)
}
