// Package server exposes the supervisor's control surface over local HTTP:
// the GUI (or an operator) queries status and issues stop/restart, and
// subscribes to lifecycle events over SSE.
package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/sidecard/internal/history"
	"github.com/loykin/sidecard/internal/metrics"
	"github.com/loykin/sidecard/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the supervisor.
// Endpoints:
//
//	GET  {basePath}/status   -> status snapshot + URLs
//	POST {basePath}/start
//	POST {basePath}/restart
//	POST {basePath}/stop
//	GET  {basePath}/events   -> SSE stream of lifecycle events
//	GET  {basePath}/history  -> recent audit records (404 without a sink)
//	GET  {basePath}/healthz  -> the supervisor's own liveness
//	GET  {basePath}/metrics
type Router struct {
	sup      *supervisor.Supervisor
	hist     *history.SQLite
	basePath string
}

// NewRouter constructs a Router. hist may be nil.
func NewRouter(sup *supervisor.Supervisor, hist *history.SQLite, basePath string) *Router {
	return &Router{sup: sup, hist: hist, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/restart", r.handleRestart)
	group.POST("/stop", r.handleStop)
	group.GET("/events", r.handleEvents)
	group.GET("/history", r.handleHistory)
	group.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, hist *history.SQLite) (*http.Server, error) {
	r := NewRouter(sup, hist, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv, nil
}

type statusResponse struct {
	supervisor.Status
	BaseURL   string `json:"base_url,omitempty"`
	SocketURL string `json:"socket_url,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Status:    r.sup.Status(),
		BaseURL:   r.sup.BaseURL(),
		SocketURL: r.sup.SocketURL(),
	})
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.sup.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.sup.Status())
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.sup.Restart(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.sup.Status())
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.sup.Status())
}

// handleEvents streams lifecycle events as server-sent events until the
// client disconnects.
func (r *Router) handleEvents(c *gin.Context) {
	events, cancel := r.sup.Events().Subscribe(32)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(_ io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Kind), e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history sink not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := r.hist.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}
