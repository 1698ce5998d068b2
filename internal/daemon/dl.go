package daemon

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"fetchrelay/internal/model"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleTree(c echo.Context) error {
	result, err := s.d.tree.Build()
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleList(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("perPage"))

	return c.JSON(http.StatusOK, s.d.tree.List(c.QueryParam("q"), page, perPage, s.d.cfg.PublicURLPrefix))
}

type pathRequest struct {
	credentials
	Path string `json:"path"`
}

func (s *Server) handleDeleteAny(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errBadRequest)
	}
	if err := s.authorize(req.credentials); err != nil {
		return s.fail(c, err)
	}
	if req.Path == "" {
		return s.fail(c, fmt.Errorf("%w: path required", errBadRequest))
	}

	if err := s.d.tree.Delete(req.Path); err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDeleteFile(c echo.Context) error {
	var req credentials
	_ = c.Bind(&req)
	if err := s.authorize(req); err != nil {
		return s.fail(c, err)
	}

	name := c.Param("name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	if err := s.d.tree.DeleteFile(name); err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

type renameRequest struct {
	credentials
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

func (s *Server) handleRename(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errBadRequest)
	}
	if err := s.authorize(req.credentials); err != nil {
		return s.fail(c, err)
	}
	if req.OldPath == "" || req.NewPath == "" {
		return s.fail(c, fmt.Errorf("%w: oldPath and newPath required", errBadRequest))
	}

	if err := s.d.tree.Rename(req.OldPath, req.NewPath); err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "renamed"})
}

type relayedJob struct {
	JobID string        `json:"jobId"`
	Path  string        `json:"path"`
	Type  model.JobKind `json:"type"`
}

// handleRelayTree queues a relay job for every file at or under path.
func (s *Server) handleRelayTree(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errBadRequest)
	}
	if err := s.authorize(req.credentials); err != nil {
		return s.fail(c, err)
	}

	jobs, err := s.d.orch.EnqueueLocal(req.Path)
	if err != nil {
		return s.fail(c, err)
	}

	out := make([]relayedJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, relayedJob{JobID: job.ID, Path: jobRelPath(job), Type: job.Kind})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total": len(out),
		"jobs":  out,
	})
}
