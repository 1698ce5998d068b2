package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"fetchrelay/internal/logger"
	"fetchrelay/internal/util"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const restartTimeout = 2 * time.Minute

func (s *Server) handleFreeSpace(c echo.Context) error {
	free, total, err := diskSpace(s.d.cfg.PublicDir)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"free":       humanize.IBytes(free),
		"freeBytes":  free,
		"totalBytes": total,
	})
}

// handleCookies replaces the cookies file of the companion downloader and
// restarts it in the background.
func (s *Server) handleCookies(c echo.Context) error {
	cr := credentials{
		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
	}
	if err := s.authorize(cr); err != nil {
		return s.fail(c, err)
	}

	if s.d.cfg.CookiesPath == "" {
		return s.fail(c, fmt.Errorf("%w: cookies upload not configured", errBadRequest))
	}

	fh, err := c.FormFile("cookies")
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: no file uploaded", errBadRequest))
	}

	src, err := fh.Open()
	if err != nil {
		return s.fail(c, err)
	}
	defer func() { _ = src.Close() }()

	if err := util.AtomicWrite(s.d.cfg.CookiesPath, src, 0644); err != nil {
		return s.fail(c, err)
	}

	logger.Log.Info("cookies file replaced",
		zap.String("path", s.d.cfg.CookiesPath),
		zap.String("size", humanize.IBytes(uint64(fh.Size))))

	if s.d.cfg.RestartCommand != "" {
		go runRestart(s.d.ctx, s.d.cfg.RestartCommand)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func runRestart(ctx context.Context, command string) {
	ctx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		logger.Log.Warn("restart command failed",
			zap.String("command", command),
			zap.ByteString("output", out),
			zap.Error(err))
		return
	}

	logger.Log.Info("restart command finished", zap.String("command", command))
}
