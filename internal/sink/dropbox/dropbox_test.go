package dropbox

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"fetchrelay/internal/sink"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

func TestPaths(t *testing.T) {
	if got := normalizePath("relay/videos/"); got != "/relay/videos" {
		t.Fatalf("unexpected folder %q", got)
	}
	if got := normalizePath(""); got != "/" {
		t.Fatalf("unexpected root %q", got)
	}
	if got := joinPath("/", "a.mp4"); got != "/a.mp4" {
		t.Fatalf("unexpected join %q", got)
	}
	if got := joinPath("/relay", "a.mp4"); got != "/relay/a.mp4" {
		t.Fatalf("unexpected join %q", got)
	}
}

func TestCountingReaderReportsAbsolute(t *testing.T) {
	var last sink.Signal
	r := &countingReader{
		ctx:    context.Background(),
		r:      strings.NewReader(strings.Repeat("x", 100)),
		report: func(s sink.Signal) { last = s },
	}

	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatal(err)
	}

	if a, ok := last.(sink.Absolute); !ok || a != 100 {
		t.Fatalf("expected Absolute(100), got %#v", last)
	}
}

func TestCountingReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &countingReader{ctx: ctx, r: strings.NewReader("data")}
	if _, err := r.Read(make([]byte, 4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConnectWithoutSession(t *testing.T) {
	s := New("relay")
	s.newClient = func(context.Context) (files.Client, error) {
		return nil, errors.New("no token")
	}

	if err := s.Connect(context.Background()); !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if s.Ready() {
		t.Fatal("sink must not be ready")
	}
}
