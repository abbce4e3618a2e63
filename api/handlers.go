package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"portsweep/scanner"
)

// ScanDefaults are applied to requests that omit optional fields.
type ScanDefaults struct {
	Timeout        time.Duration
	Concurrency    int
	MaxConcurrency int
}

// Server bundles dependencies for HTTP handlers.
type Server struct {
	store    TaskStore
	defaults ScanDefaults
	logger   *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(store TaskStore, defaults ScanDefaults, logger *slog.Logger) *Server {
	if defaults.Timeout <= 0 {
		defaults.Timeout = scanner.DefaultTimeout
	}
	if defaults.Concurrency <= 0 {
		defaults.Concurrency = scanner.DefaultConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: store, defaults: defaults, logger: logger}
}

// RegisterRoutes attaches handlers to the provided Gin router group.
func (s *Server) RegisterRoutes(routes gin.IRoutes) {
	routes.POST("/scans", s.createScanHandler)
	routes.GET("/scans/:id", s.getScanHandler)
	routes.DELETE("/scans/:id", s.cancelScanHandler)
}

// @Summary      Create a new scan task
// @Description  Submit a TCP connect scan of one target over an inclusive port range. The definition is validated before it is queued, so a malformed range or target is rejected with 400 and never reaches a worker.
// @Description  **Lifecycle**: the handler answers with HTTP 202 and the task identifier. Poll GET /scans/{id} to follow pending → running → completed, cancelled or failed.
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Param        scanRequest  body      CreateScanRequest      true  "Scan request parameters"
// @Success      202          {object}  ScanAcceptedResponse  "Scan accepted. Example: {\"id\":\"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678\",\"status\":\"pending\"}"
// @Failure      400          {object}  ErrorResponse         "Malformed JSON body or invalid scan definition. Example: {\"error\":\"ports \\\"90-80\\\": invalid port range: start 90 is greater than end 80\"}"
// @Failure      401          {object}  ErrorResponse         "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Failure      429          {object}  ErrorResponse         "Rate limit exceeded for the calling client. Example: {\"error\":\"rate limit exceeded\"}"
// @Failure      500          {object}  ErrorResponse         "Internal error while persisting or queueing the task. Example: {\"error\":\"failed to persist task\"}"
// @Security     ApiKeyAuth
// @Router       /scans [post]
func (s *Server) createScanHandler(c *gin.Context) {
	var req CreateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request payload: %v", err)})
		return
	}

	timeout := s.defaults.Timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	concurrency := req.Concurrency
	if concurrency == 0 {
		concurrency = s.defaults.Concurrency
	}
	if s.defaults.MaxConcurrency > 0 && concurrency > s.defaults.MaxConcurrency {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("concurrency exceeds maximum of %d", s.defaults.MaxConcurrency)})
		return
	}

	cfg, err := scanner.NewScanConfig(scanner.ScanParams{
		Target:      req.Target,
		Ports:       req.Ports,
		Timeout:     timeout,
		Concurrency: concurrency,
	})
	if err != nil {
		var cfgErr *scanner.ConfigError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: cfgErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	taskID, err := uuid.NewRandom()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to generate task id"})
		return
	}

	ctx := c.Request.Context()
	task := &ScanTask{
		ID:             taskID.String(),
		Status:         TaskPending,
		Target:         cfg.Target.String(),
		Ports:          cfg.Range.String(),
		TimeoutSeconds: wholeSeconds(cfg.Timeout),
		Concurrency:    cfg.Concurrency,
		Progress:       Progress{Total: cfg.Range.Len()},
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		s.logger.Error("failed to persist task", "task_id", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to persist task"})
		return
	}

	if err := s.store.PushToQueue(ctx, task.ID); err != nil {
		s.logger.Error("failed to queue task", "task_id", task.ID, "error", err)
		task.Status = TaskFailed
		task.Error = "failed to queue task"
		now := time.Now().UTC()
		task.CompletedAt = &now
		_ = s.store.UpdateTask(ctx, task)

		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to queue task"})
		return
	}

	s.logger.Info("scan queued", "task_id", task.ID, "target", task.Target, "ports", task.Ports)
	c.JSON(http.StatusAccepted, ScanAcceptedResponse{ID: task.ID, Status: task.Status})
}

// @Summary      Get scan status and results
// @Description  Retrieve a live snapshot of a scan task. While running, progress reports how many ports have been classified. Once terminal, results holds one entry per scanned port in ascending order.
// @Description  A cancelled task keeps the outcomes collected so far and reports complete=false.
// @Tags         Scans
// @Produce      json
// @Param        id   path      string      true  "Scan Task ID (UUID v4)"
// @Success      200  {object}  ScanTask       "Current task snapshot. Example: {\"id\":\"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678\",\"status\":\"completed\",\"complete\":true,\"results\":[{\"ip\":\"192.0.2.10\",\"port\":443,\"status\":\"OPEN\"}]}"
// @Failure      400  {object}  ErrorResponse  "Malformed task identifier. Example: {\"error\":\"invalid task id format\"}"
// @Failure      401  {object}  ErrorResponse  "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Failure      404  {object}  ErrorResponse  "Task with the provided ID does not exist. Example: {\"error\":\"task not found\"}"
// @Failure      429  {object}  ErrorResponse  "Rate limit exceeded for the calling client. Example: {\"error\":\"rate limit exceeded\"}"
// @Failure      500  {object}  ErrorResponse  "Internal error when loading the task. Example: {\"error\":\"failed to load task\"}"
// @Security     ApiKeyAuth
// @Router       /scans/{id} [get]
func (s *Server) getScanHandler(c *gin.Context) {
	task, ok := s.loadTask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, task)
}

// @Summary      Cancel a scan task
// @Description  Request cancellation. A pending task is never started; a running task stops admitting probes, aborts those in flight and is stored as cancelled with its partial results.
// @Tags         Scans
// @Produce      json
// @Param        id   path      string          true  "Scan Task ID (UUID v4)"
// @Success      202  {object}  CancelResponse  "Cancellation requested. Example: {\"id\":\"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678\",\"status\":\"running\",\"cancel_requested\":true}"
// @Failure      400  {object}  ErrorResponse   "Malformed task identifier. Example: {\"error\":\"invalid task id format\"}"
// @Failure      401  {object}  ErrorResponse   "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Failure      404  {object}  ErrorResponse   "Task with the provided ID does not exist. Example: {\"error\":\"task not found\"}"
// @Failure      409  {object}  ErrorResponse   "Task already reached a terminal state. Example: {\"error\":\"task already completed\"}"
// @Failure      500  {object}  ErrorResponse   "Internal error when requesting cancellation. Example: {\"error\":\"failed to cancel task\"}"
// @Security     ApiKeyAuth
// @Router       /scans/{id} [delete]
func (s *Server) cancelScanHandler(c *gin.Context) {
	task, ok := s.loadTask(c)
	if !ok {
		return
	}
	if task.Terminal() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "task already " + task.Status})
		return
	}

	if err := s.store.RequestCancel(c.Request.Context(), task.ID); err != nil {
		s.logger.Error("failed to request cancellation", "task_id", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to cancel task"})
		return
	}

	s.logger.Info("scan cancellation requested", "task_id", task.ID, "status", task.Status)
	c.JSON(http.StatusAccepted, CancelResponse{ID: task.ID, Status: task.Status, CancelRequested: true})
}

// @Summary      Health check
// @Description  Reports whether the task store is reachable.
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse  "Example: {\"status\":\"ok\"}"
// @Failure      503  {object}  ErrorResponse   "Example: {\"error\":\"redis unavailable\"}"
// @Router       /healthz [get]
func (s *Server) healthHandler(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "redis unavailable"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) loadTask(c *gin.Context) (*ScanTask, bool) {
	id, ok := canonicalTaskID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid task id format"})
		return nil, false
	}
	task, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "task not found"})
			return nil, false
		}
		s.logger.Error("failed to load task", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load task"})
		return nil, false
	}
	return task, true
}

// canonicalTaskID accepts a UUID v4 in its 36 character form and returns it lowercased.
func canonicalTaskID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.Version() != 4 {
		return "", false
	}
	// uuid.Parse also accepts the urn and braced forms.
	if !strings.EqualFold(parsed.String(), id) {
		return "", false
	}
	return parsed.String(), true
}

func wholeSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
