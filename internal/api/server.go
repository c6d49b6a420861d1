// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/command"
	"github.com/dynodocs/template-engine/internal/editor"
	"github.com/dynodocs/template-engine/internal/jobs"
	"github.com/dynodocs/template-engine/internal/placeholder"
	"github.com/dynodocs/template-engine/internal/preview"
	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/store"
	"github.com/dynodocs/template-engine/internal/tenant"
	"github.com/dynodocs/template-engine/internal/watch"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

// SavedMessage is returned by the update endpoint
const SavedMessage = "Template updated successfully"

// Options wire the server to its dependencies
type Options struct {
	Store        *store.Store
	Tenants      *tenant.Registry
	Queue        *jobs.Queue
	Preview      *preview.Service
	Hub          *Hub
	JWTSecret    string // empty disables token checks
	AllowOrigins []string
	Logger       *zap.Logger
}

// Server is the API server
type Server struct {
	router    *gin.Engine
	store     *store.Store
	tenants   *tenant.Registry
	queue     *jobs.Queue
	preview   *preview.Service
	executor  *command.Executor
	hub       *Hub
	upgrader  websocket.Upgrader
	jwtSecret string
	logger    *zap.Logger
	http      *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(logger)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.Use(corsMiddleware(opts.AllowOrigins))

	server := &Server{
		router:    router,
		store:     opts.Store,
		tenants:   opts.Tenants,
		queue:     opts.Queue,
		preview:   opts.Preview,
		executor:  command.NewExecutor(opts.Store, opts.Tenants, opts.Queue, opts.Preview),
		hub:       hub,
		jwtSecret: opts.JWTSecret,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.router.GET("/ws", s.authMiddleware(), s.handleWebSocket)
	s.router.GET("/api/marketplace/:id/preview.html", s.handleMarketplacePreview)

	api := s.router.Group("/api", s.authMiddleware())
	api.GET("/templates", s.handleListTemplates)
	api.POST("/templates", s.handleCreateTemplate)
	api.PUT("/templates/update", s.handleUpdateTemplate)
	api.GET("/templates/:id", s.handleGetTemplate)
	api.DELETE("/templates/:id", s.handleDeleteTemplate)
	api.GET("/templates/:id/preview.html", s.handlePreviewHTML)
	api.GET("/templates/:id/preview.png", s.handlePreviewPNG)
	api.GET("/templates/:id/tokens", s.handleTokens)

	api.GET("/tenants/:id", s.handleGetTenant)
	api.PUT("/tenants/:id", s.handlePutTenant)

	api.POST("/render", s.handleRender)
	api.GET("/jobs", s.handleGetJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.GET("/jobs/:id/image.png", s.handleJobOutput)

	s.router.POST("/command", s.authMiddleware(), s.handleCommand)
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleListTemplates(c *gin.Context) {
	list, err := s.store.List(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(200, gin.H{"templates": list})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	t, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.lookupError(c, err)
		return
	}
	c.JSON(200, t)
}

func (s *Server) handleCreateTemplate(c *gin.Context) {
	var req struct {
		Name           string `json:"name" binding:"required"`
		TemplateDesign string `json:"templateDesign"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "name is required"})
		return
	}
	if req.TemplateDesign != "" && designformat.Parse(req.TemplateDesign) == nil {
		c.JSON(400, gin.H{"error": "templateDesign is not a readable design"})
		return
	}

	sc := session.FromContext(c.Request.Context())
	t, err := s.store.Create(c.Request.Context(), req.Name, req.TemplateDesign, sc.UserID())
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.hub.BroadcastTemplate(t.ID, "added")
	c.JSON(201, t)
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		s.lookupError(c, err)
		return
	}
	s.logger.Info("template deleted", zap.String("template_id", id))
	s.hub.BroadcastTemplate(id, watch.Removed)
	c.JSON(200, gin.H{"message": "Template deleted"})
}

// handleUpdateTemplate accepts {templateId, userId, templateDesign} and
// answers {message}
func (s *Server) handleUpdateTemplate(c *gin.Context) {
	var req editor.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TemplateID == "" || req.TemplateDesign == "" {
		c.JSON(400, gin.H{"error": "templateId and templateDesign are required"})
		return
	}
	if designformat.Parse(req.TemplateDesign) == nil {
		c.JSON(400, gin.H{"error": "templateDesign is not a readable design"})
		return
	}
	if req.UserID == "" {
		req.UserID = session.FromContext(c.Request.Context()).UserID()
	}

	if _, err := s.store.Save(c.Request.Context(), req.TemplateID, req.TemplateDesign, req.UserID); err != nil {
		s.lookupError(c, err)
		return
	}

	s.logger.Info("template updated",
		zap.String("template_id", req.TemplateID), zap.String("user_id", req.UserID))
	s.hub.BroadcastTemplate(req.TemplateID, "updated")
	c.JSON(200, gin.H{"message": SavedMessage})
}

func (s *Server) handlePreviewHTML(c *gin.Context) {
	width, ok := widthParam(c)
	if !ok {
		return
	}
	sc := session.FromContext(c.Request.Context())
	provider := s.preview.TenantProvider(sc)

	var out []byte
	var err error
	if c.Query("fragment") == "1" {
		out, err = s.preview.Fragment(c.Request.Context(), c.Param("id"), width, provider)
	} else {
		out, err = s.preview.HTML(c.Request.Context(), c.Param("id"), width, provider)
	}
	if err != nil {
		s.lookupError(c, err)
		return
	}
	c.Data(200, "text/html; charset=utf-8", out)
}

func (s *Server) handlePreviewPNG(c *gin.Context) {
	width, ok := widthParam(c)
	if !ok {
		return
	}
	sc := session.FromContext(c.Request.Context())
	out, err := s.preview.PNG(c.Request.Context(), c.Param("id"), width, s.preview.TenantProvider(sc))
	if err != nil {
		s.lookupError(c, err)
		return
	}
	c.Data(200, "image/png", out)
}

// handleMarketplacePreview renders with the sample vocabulary and needs no session
func (s *Server) handleMarketplacePreview(c *gin.Context) {
	width, ok := widthParam(c)
	if !ok {
		return
	}
	out, err := s.preview.HTML(c.Request.Context(), c.Param("id"), width, placeholder.SampleProvider{})
	if err != nil {
		s.lookupError(c, err)
		return
	}
	c.Data(200, "text/html; charset=utf-8", out)
}

func (s *Server) handleTokens(c *gin.Context) {
	tokens, err := s.preview.Tokens(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.lookupError(c, err)
		return
	}
	c.JSON(200, gin.H{"templateId": c.Param("id"), "tokens": tokens})
}

func (s *Server) handleGetTenant(c *gin.Context) {
	info, err := s.tenants.Tenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.lookupError(c, err)
		return
	}
	c.JSON(200, info)
}

func (s *Server) handlePutTenant(c *gin.Context) {
	id := c.Param("id")
	sc := session.FromContext(c.Request.Context())
	if s.jwtSecret != "" && sc.TenantID() != id {
		c.JSON(403, gin.H{"error": "cannot modify another tenant"})
		return
	}

	var info tenant.Info
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("invalid tenant: %v", err)})
		return
	}
	info.ID = id

	saved, err := s.tenants.Put(info)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(200, saved)
}

func (s *Server) handleRender(c *gin.Context) {
	var req jobs.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if tenantID, scoped := s.tenantScope(c); scoped {
		if req.TenantID != "" && req.TenantID != tenantID {
			c.JSON(403, gin.H{"error": "cannot render for another tenant"})
			return
		}
		req.TenantID = tenantID
	} else if req.TenantID == "" {
		req.TenantID = session.FromContext(c.Request.Context()).TenantID()
	}
	if _, err := s.store.Get(c.Request.Context(), req.TemplateID); err != nil {
		s.lookupError(c, err)
		return
	}

	jobID, err := s.queue.Enqueue(req)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(202, gin.H{"success": true, "job_id": jobID})
}

func (s *Server) handleGetJobs(c *gin.Context) {
	all := s.queue.GetAllJobs()
	tenantID, scoped := s.tenantScope(c)
	if !scoped {
		c.JSON(200, gin.H{"jobs": all})
		return
	}
	visible := make([]*jobs.Job, 0, len(all))
	for _, job := range all {
		if job.TenantID == tenantID {
			visible = append(visible, job)
		}
	}
	c.JSON(200, gin.H{"jobs": visible})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job := s.callerJob(c)
	if job == nil {
		return
	}
	job.Output = nil
	c.JSON(200, job)
}

func (s *Server) handleJobOutput(c *gin.Context) {
	job := s.callerJob(c)
	if job == nil {
		return
	}
	if job.Status != jobs.StatusCompleted {
		c.JSON(409, gin.H{"error": "job is " + job.Status})
		return
	}
	c.Data(200, job.ContentType, job.Output)
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "command is required"})
		return
	}

	ctx := c.Request.Context()
	if tenantID, scoped := s.tenantScope(c); scoped {
		ctx = command.WithTenantScope(ctx, tenantID)
	}
	result := s.executor.Execute(ctx, req.Command)

	if !result.Success {
		c.JSON(400, gin.H{
			"success": false,
			"error":   result.Error,
		})
		return
	}

	response := gin.H{"success": true}
	if result.Message != "" {
		response["message"] = result.Message
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.JSON(200, response)
}

// Run starts the API server and blocks until ctx is cancelled or it fails
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// tenantScope returns the tenant every job request is pinned to. Without a
// JWT secret callers are not scoped.
func (s *Server) tenantScope(c *gin.Context) (string, bool) {
	if s.jwtSecret == "" {
		return "", false
	}
	return session.FromContext(c.Request.Context()).TenantID(), true
}

// callerJob looks up the job in the path, answering 404 when it is missing
// or belongs to another tenant
func (s *Server) callerJob(c *gin.Context) *jobs.Job {
	job := s.queue.GetJob(c.Param("id"))
	if job != nil {
		if tenantID, scoped := s.tenantScope(c); scoped && job.TenantID != tenantID {
			job = nil
		}
	}
	if job == nil {
		c.JSON(404, gin.H{"error": "job not found"})
	}
	return job
}

func (s *Server) lookupError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, tenant.ErrNotFound) {
		c.JSON(404, gin.H{"error": err.Error()})
		return
	}
	s.internalError(c, err)
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(500, gin.H{"error": err.Error()})
}

func widthParam(c *gin.Context) (float64, bool) {
	raw := c.Query("width")
	if raw == "" {
		return designformat.BaseWidth, true
	}
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil || w <= 0 {
		c.JSON(400, gin.H{"error": "width must be a positive number"})
		return 0, false
	}
	return w, true
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID", "X-User-ID",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// authMiddleware attaches the caller's session. With a JWT secret a valid
// bearer token is required; without one the X-Tenant-ID and X-User-ID
// headers are trusted.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sc session.Context
		token, hasBearer := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !hasBearer && c.Query("access_token") != "" {
			// browsers cannot set headers on websocket upgrades
			token, hasBearer = c.Query("access_token"), true
		}

		switch {
		case s.jwtSecret == "":
			sc = session.Static{
				AccessToken: token,
				Tenant:      c.GetHeader("X-Tenant-ID"),
				User:        c.GetHeader("X-User-ID"),
			}
		case !hasBearer || token == "":
			c.AbortWithStatusJSON(401, gin.H{"error": "authorization required"})
			return
		default:
			parsed, err := session.ParseToken(token, s.jwtSecret)
			if err != nil {
				c.AbortWithStatusJSON(401, gin.H{"error": "invalid token"})
				return
			}
			sc = parsed
		}

		c.Request = c.Request.WithContext(session.WithContext(c.Request.Context(), sc))
		c.Next()
	}
}
