// Package server exposes the Slack Events API webhook and the admin API
// managing agent bindings.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/docker/agent-relay/pkg/slack"
	"github.com/docker/agent-relay/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// EventHandler processes a Slack Events API request.
type EventHandler interface {
	Handle(header http.Header, body []byte) (string, error)
}

type Server struct {
	e        *echo.Echo
	events   EventHandler
	bindings *store.Bindings
}

type Opt func(*options)

type options struct {
	adminSecret []byte
}

// WithAdminSecret enables the admin API, authenticated with HS256 tokens
// signed with secret.
func WithAdminSecret(secret string) Opt {
	return func(o *options) {
		o.adminSecret = []byte(secret)
	}
}

func New(events EventHandler, bindings *store.Bindings, opts ...Opt) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.BodyLimit("1M"))

	s := &Server{
		e:        e,
		events:   events,
		bindings: bindings,
	}

	// Slack Events API webhook
	e.POST("/slack/events", s.slackEvents)

	group := e.Group("/api")

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	admin := group.Group("/bindings", requireAdmin(o.adminSecret))
	// List bindings, optionally of a single team
	admin.GET("", s.listBindings)
	// Get the binding of a channel
	admin.GET("/:team/:channel", s.getBinding)
	// Bind an agent to a channel
	admin.PUT("/:team/:channel", s.putBinding)
	// Remove the binding of a channel
	admin.DELETE("/:team/:channel", s.deleteBinding)

	return s
}

// Serve serves on ln until ctx is done, then shuts down gracefully. It
// returns once in-flight requests have completed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(shutdown)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down server", "error", err)
		}
	})

	slog.Info("Listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if !stop() {
		// Shutdown returns once in-flight requests are done, Serve doesn't.
		<-shutdown
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to start server", "error", err)
		return err
	}

	return nil
}

func (s *Server) slackEvents(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body").SetInternal(err)
	}

	challenge, err := s.events.Handle(c.Request().Header, body)
	switch {
	case errors.Is(err, slack.ErrInvalidSignature):
		slog.Warn("Rejected Slack request", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, slack.ErrInvalidPayload):
		slog.Warn("Rejected Slack request", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	case err != nil:
		slog.Error("Failed to handle Slack request", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	case challenge != "":
		return c.String(http.StatusOK, challenge)
	default:
		return c.NoContent(http.StatusOK)
	}
}

type bindRequest struct {
	AgentID   string `json:"agent_id"`
	CreatedBy string `json:"created_by,omitempty"`
}

func (s *Server) listBindings(c echo.Context) error {
	bindings, err := s.bindings.List(c.Request().Context(), c.QueryParam("team"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list bindings").SetInternal(err)
	}
	return c.JSON(http.StatusOK, bindings)
}

func (s *Server) getBinding(c echo.Context) error {
	binding, err := s.bindings.Get(c.Request().Context(), c.Param("team"), c.Param("channel"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "binding not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get binding").SetInternal(err)
	}
	return c.JSON(http.StatusOK, binding)
}

func (s *Server) putBinding(c echo.Context) error {
	var req bindRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy, _ = c.Get("admin").(string)
	}

	binding := store.Binding{
		TeamID:    c.Param("team"),
		Channel:   c.Param("channel"),
		AgentID:   req.AgentID,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.bindings.Bind(c.Request().Context(), binding); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	slog.Info("Agent bound", "team", binding.TeamID, "channel", binding.Channel, "agent", binding.AgentID, "by", createdBy)
	return c.JSON(http.StatusOK, binding)
}

func (s *Server) deleteBinding(c echo.Context) error {
	err := s.bindings.Unbind(c.Request().Context(), c.Param("team"), c.Param("channel"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "binding not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete binding").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
