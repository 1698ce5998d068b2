// Package gdrive relays files into a Google Drive folder.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"fetchrelay/internal/auth"
	"fetchrelay/internal/logger"
	"fetchrelay/internal/sink"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	documentMimeType = "application/octet-stream"
	uploadChunkSize  = 8 << 20
)

type newServiceFunc func(ctx context.Context) (*drive.Service, error)

type Sink struct {
	mu         sync.RWMutex
	folderPath string
	svc        *drive.Service
	folderID   string
	newService newServiceFunc
}

func New(folderPath string) *Sink {
	return &Sink{
		folderPath: strings.TrimPrefix(folderPath, "/"),
		newService: auth.NewDriveService,
	}
}

func (s *Sink) Name() string {
	return auth.ProviderGDrive
}

func (s *Sink) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.svc != nil
}

// Connect reuses the saved session and resolves the target folder,
// creating missing path segments.
func (s *Sink) Connect(ctx context.Context) error {
	if s.Ready() {
		return nil
	}

	svc, err := s.newService(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", sink.ErrNotConnected, err)
	}

	folderID, err := ensureFolderPath(ctx, svc, s.folderPath)
	if err != nil {
		return fmt.Errorf("failed to prepare gdrive folder: %w", err)
	}

	s.mu.Lock()
	s.svc = svc
	s.folderID = folderID
	s.mu.Unlock()

	logger.Log.Info("gdrive sink ready",
		zap.String("folder", s.folderPath),
		zap.String("folder_id", folderID))

	return nil
}

func (s *Sink) Send(ctx context.Context, item sink.Item, report func(sink.Signal)) error {
	s.mu.RLock()
	svc, folderID := s.svc, s.folderID
	s.mu.RUnlock()

	if svc == nil {
		return sink.ErrNotConnected
	}

	f, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	file := driveFile(item, folderID)

	opts := []googleapi.MediaOption{googleapi.ChunkSize(uploadChunkSize)}
	if item.ForceDocument {
		opts = append(opts, googleapi.ContentType(documentMimeType))
	}

	call := svc.Files.Create(file).
		Media(f, opts...).
		Fields("id").
		Context(ctx)

	if report != nil {
		call = call.ProgressUpdater(func(current, total int64) {
			report(sink.BytePair{Sent: current, Total: total})
		})
	}

	created, err := call.Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	logger.Log.Info("gdrive relay complete",
		zap.String("name", item.Name),
		zap.String("file_id", created.Id))

	return nil
}

func driveFile(item sink.Item, folderID string) *drive.File {
	file := &drive.File{
		Name:        item.Name,
		Parents:     []string{folderID},
		Description: item.Caption,
	}

	if item.ForceDocument {
		file.MimeType = documentMimeType
		return file
	}

	if m := item.Media; m != nil && m.DurationSeconds > 0 && m.Width > 0 && m.Height > 0 {
		file.AppProperties = map[string]string{
			"durationSeconds": strconv.Itoa(int(m.DurationSeconds + 0.5)),
			"width":           strconv.Itoa(m.Width),
			"height":          strconv.Itoa(m.Height),
		}
	}

	return file
}
