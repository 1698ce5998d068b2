package gdrive

import (
	"context"
	"errors"
	"testing"

	"fetchrelay/internal/media"
	"fetchrelay/internal/sink"

	"google.golang.org/api/drive/v3"
)

func TestSplitPath(t *testing.T) {
	if got := splitPath("/a/b/"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split %v", got)
	}
	if got := splitPath(""); got != nil {
		t.Fatalf("empty path should split to nil, got %v", got)
	}
}

func TestEscapeName(t *testing.T) {
	if got := escapeName("it's"); got != `it\'s` {
		t.Fatalf("unexpected escape %q", got)
	}
}

func TestDriveFileAttributes(t *testing.T) {
	item := sink.Item{
		Name:    "clip.mp4",
		Caption: "clip",
		Media:   &media.Info{DurationSeconds: 12.6, Width: 1280, Height: 720},
	}

	f := driveFile(item, "folder")
	if f.Description != "clip" || f.Parents[0] != "folder" {
		t.Fatalf("unexpected file %+v", f)
	}
	if f.AppProperties["durationSeconds"] != "13" || f.AppProperties["width"] != "1280" {
		t.Fatalf("unexpected attributes %v", f.AppProperties)
	}

	item.ForceDocument = true
	doc := driveFile(item, "folder")
	if doc.MimeType != documentMimeType || doc.AppProperties != nil {
		t.Fatalf("forced document must drop media attributes, got %+v", doc)
	}
}

func TestConnectWithoutSession(t *testing.T) {
	s := New("relay")
	s.newService = func(context.Context) (*drive.Service, error) {
		return nil, errors.New("no token")
	}

	if err := s.Connect(context.Background()); !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if s.Ready() {
		t.Fatal("sink must not be ready")
	}
	if err := s.Send(context.Background(), sink.Item{}, nil); !errors.Is(err, sink.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
