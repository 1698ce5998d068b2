// Package dropbox relays files into a Dropbox folder.
package dropbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"fetchrelay/internal/auth"
	"fetchrelay/internal/logger"
	"fetchrelay/internal/sink"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"go.uber.org/zap"
)

const (
	singleUploadLimit = 150 << 20
	sessionChunkSize  = 8 << 20
)

type newClientFunc func(ctx context.Context) (files.Client, error)

type Sink struct {
	mu         sync.RWMutex
	folderPath string
	client     files.Client
	newClient  newClientFunc
}

func New(folderPath string) *Sink {
	return &Sink{
		folderPath: normalizePath(folderPath),
		newClient:  auth.NewDropboxClient,
	}
}

func (s *Sink) Name() string {
	return auth.ProviderDropbox
}

func (s *Sink) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

func (s *Sink) Connect(ctx context.Context) error {
	if s.Ready() {
		return nil
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", sink.ErrNotConnected, err)
	}

	if s.folderPath != "/" {
		if err := ensureFolder(client, s.folderPath); err != nil {
			return fmt.Errorf("failed to prepare dropbox folder: %w", err)
		}
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	logger.Log.Info("dropbox sink ready", zap.String("folder", s.folderPath))
	return nil
}

// Send uploads item in one request, or through an upload session when it
// exceeds the single-request limit. Progress is reported as absolute bytes.
func (s *Sink) Send(ctx context.Context, item sink.Item, report func(sink.Signal)) error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil {
		return sink.ErrNotConnected
	}

	f, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	dst := joinPath(s.folderPath, item.Name)
	r := &countingReader{ctx: ctx, r: f, report: report}

	if item.Size <= singleUploadLimit {
		arg := files.NewUploadArg(dst)
		arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: "add"}}
		arg.Autorename = true

		if _, err := client.Upload(arg, r); err != nil {
			return fmt.Errorf("failed to upload to dropbox: %w", err)
		}
	} else if err := uploadSession(client, dst, r, item.Size); err != nil {
		return err
	}

	logger.Log.Info("dropbox relay complete",
		zap.String("name", item.Name),
		zap.String("path", dst))

	return nil
}

func uploadSession(client files.Client, dst string, r io.Reader, size int64) error {
	start, err := client.UploadSessionStart(files.NewUploadSessionStartArg(), io.LimitReader(r, sessionChunkSize))
	if err != nil {
		return fmt.Errorf("failed to start dropbox upload session: %w", err)
	}

	offset := uint64(min(size, sessionChunkSize))
	for int64(offset)+sessionChunkSize < size {
		cursor := files.NewUploadSessionCursor(start.SessionId, offset)
		if err := client.UploadSessionAppendV2(files.NewUploadSessionAppendArg(cursor), io.LimitReader(r, sessionChunkSize)); err != nil {
			return fmt.Errorf("failed to append dropbox upload session: %w", err)
		}
		offset += sessionChunkSize
	}

	commit := files.NewCommitInfo(dst)
	commit.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: "add"}}
	commit.Autorename = true

	cursor := files.NewUploadSessionCursor(start.SessionId, offset)
	if _, err := client.UploadSessionFinish(files.NewUploadSessionFinishArg(cursor, commit), r); err != nil {
		return fmt.Errorf("failed to finish dropbox upload session: %w", err)
	}

	return nil
}

type countingReader struct {
	ctx    context.Context
	r      io.Reader
	sent   int64
	report func(sink.Signal)
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		if c.report != nil {
			c.report(sink.Absolute(c.sent))
		}
	}

	return n, err
}
