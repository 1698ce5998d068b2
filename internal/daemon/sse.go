package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fetchrelay/internal/events"

	"github.com/labstack/echo/v4"
)

// handleEvents streams a job's events until the client disconnects or a
// newer subscriber for the same job replaces this one.
func (s *Server) handleEvents(c echo.Context) error {
	jobID := c.Param("jobId")

	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.d.hub.Subscribe(jobID)
	defer s.d.hub.Unsubscribe(sub)

	if err := writeEvent(w, events.EventConnected, map[string]string{"jobId": jobID}); err != nil {
		return nil
	}

	// late subscribers still learn where the job stands
	if job, ok := s.d.store.Get(jobID); ok {
		status := map[string]any{"status": job.State, "percent": job.Percent}
		if err := writeEvent(w, events.EventStatus, status); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev.Type, ev.Data); err != nil {
				return nil
			}
			ticker.Reset(s.keepalive)
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	w.Flush()

	return nil
}
