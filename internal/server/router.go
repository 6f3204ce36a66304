package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/consolr/internal/auth"
	"github.com/loykin/consolr/internal/process"
	"github.com/loykin/consolr/internal/supervisor"
)

// Console is the part of the supervisor the API drives.
type Console interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (process.StopResult, error)
	Restart(ctx context.Context) error
	Send(command string) error
	Status() supervisor.Status
	SubscribeWithTail(n, buffer int) ([]string, <-chan string, func())
}

// Router provides embeddable HTTP handlers for the server console.
// Endpoints:
//
//	POST {basePath}/start
//	POST {basePath}/stop
//	POST {basePath}/restart
//	POST {basePath}/command   body: {"command": "say hi"}
//	GET  {basePath}/status
//	GET  {basePath}/logs      query: tail=N, follow=false for a JSON snapshot
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	console   Console
	basePath  string
	auth      *auth.Middleware
	metrics   http.Handler
	metricsAt string
	log       *slog.Logger
	tail      int
	keepAlive time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithToken requires "Authorization: Bearer <token>" on every endpoint.
func WithToken(token string) RouterOption {
	return func(r *Router) { r.auth = auth.NewMiddleware(token) }
}

// WithMetrics serves h at path, outside the base path and without auth.
func WithMetrics(path string, h http.Handler) RouterOption {
	return func(r *Router) { r.metricsAt, r.metrics = path, h }
}

// WithLogger logs every request at debug level.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// WithDefaultTail sets how many recent lines /logs replays when tail is absent.
func WithDefaultTail(n int) RouterOption {
	return func(r *Router) { r.tail = n }
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(console Console, basePath string, opts ...RouterOption) *Router {
	r := &Router{
		console:   console,
		basePath:  sanitizeBase(basePath),
		log:       slog.Default(),
		tail:      50,
		keepAlive: 15 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.requestLog())
	if r.metrics != nil {
		g.GET(r.metricsAt, gin.WrapH(r.metrics))
	}
	group := g.Group(r.basePath)
	if r.auth.Enabled() {
		group.Use(r.auth.GinAuth())
	}
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.POST("/command", r.handleCommand)
	group.GET("/status", r.handleStatus)
	group.GET("/logs", r.handleLogs)
	return g
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type stopResp struct {
	Result string `json:"result"`
}

type commandReq struct {
	Command string `json:"command"`
}

type logsResp struct {
	Lines []string `json:"lines"`
}

// statusFor maps supervisor errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrNotStarted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, supervisor.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) fail(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.console.Start(c.Request.Context()); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	res, err := r.console.Stop(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, stopResp{Result: res.String()})
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.console.Restart(c.Request.Context()); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	if err := r.console.Send(req.Command); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.console.Status())
}

// handleLogs streams output lines as Server-Sent Events ("event: log"),
// starting with up to tail recent lines. With follow=false it returns the
// recent lines as JSON instead.
func (r *Router) handleLogs(c *gin.Context) {
	n, ok := parseTail(c.Query("tail"), r.tail)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "tail must be a non-negative integer"})
		return
	}
	tail, lines, cancel := r.console.SubscribeWithTail(n, 0)
	defer cancel()

	if !parseBool(c.Query("follow"), true) {
		if tail == nil {
			tail = []string{}
		}
		writeJSON(c, http.StatusOK, logsResp{Lines: tail})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	for _, line := range tail {
		c.SSEvent("log", line)
	}
	c.Writer.Flush()

	ping := time.NewTicker(r.keepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case line, ok := <-lines:
			if !ok {
				return false
			}
			c.SSEvent("log", line)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
