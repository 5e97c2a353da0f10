package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/logging"
	"github.com/fyrsmithlabs/sketchd/internal/plan"
)

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:         "ok",
		Version:        s.config.Version,
		ActiveSessions: s.sessions.Active(),
		Events:         s.nc != nil && s.nc.IsConnected(),
	}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	sess, err := s.sessions.Create(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, SessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleListSessions(c echo.Context) error {
	list, err := s.sessions.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StateResponse{
		ID:      sess.ID,
		Stopped: sess.Controller().StopSignal().Stopped(),
		State:   sess.Snapshot(),
	})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleInstruction(c echo.Context) error {
	var req InstructionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "instruction field is required")
	}

	ctx := c.Request().Context()
	out, err := s.sessions.Process(ctx, c.Param("id"), req.Instruction)
	if err != nil {
		// An overrun still returns the stages drawn before the cut.
		if errors.Is(err, plan.ErrPlanOverrun) && out != nil {
			logging.FromContext(ctx).Warn(ctx, "plan chain overrun", zap.Error(err))
			return c.JSON(http.StatusOK, out)
		}
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleConfirm(c echo.Context) error {
	res, err := s.sessions.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleReject(c echo.Context) error {
	n, err := s.sessions.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RejectResponse{Rejected: n})
}

func (s *Server) handleUndo(c echo.Context) error {
	req := UndoRequest{Count: 1}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.Count < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be at least 1")
	}
	removed, err := s.sessions.Undo(c.Request().Context(), c.Param("id"), req.Count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UndoResponse{Removed: removed})
}

func (s *Server) handleStop(c echo.Context) error {
	if err := s.sessions.Stop(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ControlResponse{Stopped: true})
}

func (s *Server) handleResume(c echo.Context) error {
	if err := s.sessions.Resume(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ControlResponse{Stopped: false})
}
