package daemon

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fetchrelay/internal/logger"
	"fetchrelay/internal/metrics"
	"fetchrelay/internal/model"
	"fetchrelay/internal/store"
	"fetchrelay/internal/transfer"
	"fetchrelay/internal/tree"
	"fetchrelay/internal/util"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errBadRequest   = errors.New("bad request")
)

type Server struct {
	echo      *echo.Echo
	d         *Daemon
	port      int
	keepalive time.Duration
	stopCh    chan struct{}
}

func NewServer(d *Daemon) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:      e,
		d:         d,
		port:      d.cfg.Port,
		keepalive: d.cfg.Keepalive,
		stopCh:    make(chan struct{}, 1),
	}
	if s.keepalive <= 0 {
		s.keepalive = 15 * time.Second
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Daemon
	s.route(http.MethodGet, s.handleStatus, "/status")
	s.route(http.MethodPost, s.handleStop, "/stop")
	s.route(http.MethodGet, s.handleHistory, "/history", "/uploader/history")
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Jobs
	s.route(http.MethodPost, s.handleUpload, "/upload", "/uploader/upload")
	s.route(http.MethodGet, s.handleListJobs, "/jobs", "/uploader/jobs")
	s.route(http.MethodDelete, s.handleDeleteJob, "/jobs/:id", "/uploader/jobs/:id")
	s.route(http.MethodPost, s.handleCancelJob, "/jobs/:id/cancel", "/uploader/jobs/:id/cancel")
	s.route(http.MethodPost, s.handleCancelAll, "/jobs/cancel-all", "/uploader/jobs/cancel-all")
	s.route(http.MethodGet, s.handleEvents, "/events/:jobId", "/uploader/events/:jobId")

	// Public tree
	s.route(http.MethodGet, s.handleTree, "/dl/tree", "/uploader/dl/tree")
	s.route(http.MethodGet, s.handleList, "/dl/list", "/uploader/dl/list")
	s.route(http.MethodDelete, s.handleDeleteAny, "/dl/any", "/uploader/dl/any")
	s.route(http.MethodPost, s.handleDeleteAny, "/dl/any-delete", "/uploader/dl/any-delete")
	s.route(http.MethodDelete, s.handleDeleteFile, "/dl/:name", "/uploader/dl/:name")
	s.route(http.MethodPost, s.handleRename, "/dl/rename", "/uploader/dl/rename")
	s.route(http.MethodPost, s.handleRelayTree, "/dl/upload", "/uploader/dl/upload")

	// System
	s.route(http.MethodGet, s.handleFreeSpace, "/system/free-space", "/uploader/system/free-space")
	s.route(http.MethodPost, s.handleCookies, "/metube/cookies", "/uploader/metube/cookies")

	prefix := "/" + strings.Trim(s.d.cfg.PublicURLPrefix, "/")
	s.echo.Static(prefix, s.d.cfg.PublicDir)
}

// route registers h under every alias with no-cache headers.
func (s *Server) route(method string, h echo.HandlerFunc, paths ...string) {
	for _, p := range paths {
		s.echo.Add(method, p, h, noCache)
	}
}

func noCache(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderCacheControl, "no-store, no-cache, must-revalidate, proxy-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		return next(c)
	}
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.d.Close()
	return err
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// credentials is embedded in every mutating request body.
type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// authorize refuses every request while no username and password are
// configured.
func (s *Server) authorize(cr credentials) error {
	if s.d.cfg.Username == "" || s.d.cfg.Password == "" {
		return errUnauthorized
	}

	userOK := subtle.ConstantTimeCompare([]byte(cr.Username), []byte(s.d.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(cr.Password), []byte(s.d.cfg.Password)) == 1
	if !userOK || !passOK {
		return errUnauthorized
	}

	return nil
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest),
		errors.Is(err, util.ErrInvalidPath),
		errors.Is(err, transfer.ErrInvalidRequest),
		errors.Is(err, tree.ErrNotAFile):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrConflict),
		errors.Is(err, store.ErrJobActive),
		errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c echo.Context, err error) error {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	return c.JSON(code, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(c echo.Context) error {
	stats, err := s.d.histRepo.GetStats()
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"worker":  s.d.orch.Snapshot(),
		"history": stats,
	})
}

func (s *Server) handleStop(c echo.Context) error {
	var req credentials
	_ = c.Bind(&req)
	if err := s.authorize(req); err != nil {
		return s.fail(c, err)
	}

	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	histories, err := s.d.histRepo.GetRecent(n)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, histories)
}

type uploadRequest struct {
	credentials
	FileURL  string `json:"fileUrl"`
	SaveToDl bool   `json:"saveToDl"`
	FileName string `json:"fileName"`
}

func (s *Server) handleUpload(c echo.Context) error {
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errBadRequest)
	}
	if err := s.authorize(req.credentials); err != nil {
		return s.fail(c, err)
	}

	job, err := s.d.orch.Submit(transfer.Request{
		SourceURL:    req.FileURL,
		SaveToPublic: req.SaveToDl,
		FileName:     req.FileName,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"jobId": job.ID,
		"type":  job.Kind,
	})
}

func (s *Server) handleListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.d.store.List())
}

func (s *Server) handleDeleteJob(c echo.Context) error {
	if err := s.d.orch.Delete(c.Param("id")); err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCancelJob(c echo.Context) error {
	var req credentials
	_ = c.Bind(&req)
	if err := s.authorize(req); err != nil {
		return s.fail(c, err)
	}

	job, err := s.d.orch.Cancel(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelAll(c echo.Context) error {
	var req credentials
	_ = c.Bind(&req)
	if err := s.authorize(req); err != nil {
		return s.fail(c, err)
	}

	ids := s.d.orch.CancelAll()
	if ids == nil {
		ids = []string{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"cancelled": ids,
		"count":     len(ids),
	})
}

func jobRelPath(job model.Job) string {
	return strings.TrimPrefix(job.SourceRef, model.LocalSourcePrefix)
}
