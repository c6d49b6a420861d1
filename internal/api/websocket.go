package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/jobs"
	"github.com/dynodocs/template-engine/internal/watch"
)

// WebSocket message types
const (
	EventRender          = "render"
	EventTemplateUpdated = "template_updated"
	EventJobCompleted    = "job_completed"
	EventJobFailed       = "job_failed"
	EventResponse        = "response"
	EventError           = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server

	// tenant pins renders and job events when scoped is set
	tenant string
	scoped bool
}

func (c *WSClient) sees(tenantID string) bool {
	return !c.scoped || c.tenant == tenantID
}

// Hub tracks connected clients for broadcasts
type Hub struct {
	clients map[*WSClient]bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[*WSClient]bool), logger: logger}
}

func (h *Hub) add(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(message WSMessage, include func(*WSClient) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if include != nil && !include(client) {
			continue
		}
		select {
		case client.send <- message:
		default:
			// send buffer full, skip
		}
	}
}

// BroadcastTemplate announces a template change
func (h *Hub) BroadcastTemplate(templateID, kind string) {
	h.broadcast(WSMessage{
		Event: EventTemplateUpdated,
		Data: map[string]any{
			"templateId": templateID,
			"kind":       kind,
		},
	}, nil)
	h.logger.Debug("broadcast template change", zap.String("template_id", templateID), zap.String("kind", kind))
}

// BroadcastChange adapts watcher changes to template events
func (h *Hub) BroadcastChange(c watch.Change) {
	h.BroadcastTemplate(c.ID, c.Kind)
}

// BroadcastJob announces a finished render job to the clients of its tenant
func (h *Hub) BroadcastJob(job jobs.Job) {
	event := EventJobCompleted
	data := map[string]any{
		"jobId":      job.ID,
		"templateId": job.TemplateID,
		"status":     job.Status,
	}
	if job.Status == jobs.StatusFailed {
		event = EventJobFailed
		data["error"] = job.Error
	}
	h.broadcast(WSMessage{Event: event, Data: data}, func(c *WSClient) bool {
		return c.sees(job.TenantID)
	})
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	tenantID, scoped := s.tenantScope(c)
	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
		tenant: tenantID,
		scoped: scoped,
	}

	s.hub.add(client)
	s.logger.Info("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		close(c.send)
		c.conn.Close()
		c.server.logger.Info("websocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventRender:
		c.handleRenderEvent(msg.Data)
	default:
		c.sendError(fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

func (c *WSClient) handleRenderEvent(data map[string]any) {
	templateID, ok := data["templateId"].(string)
	if !ok || templateID == "" {
		c.sendError("templateId is required")
		return
	}

	req := jobs.Request{TemplateID: templateID}
	if w, ok := data["width"].(float64); ok {
		req.Width = w
	}
	if f, ok := data["format"].(string); ok {
		req.Format = f
	}
	if t, ok := data["tenantId"].(string); ok {
		req.TenantID = t
	}
	if c.scoped {
		if req.TenantID != "" && req.TenantID != c.tenant {
			c.sendError("cannot render for another tenant")
			return
		}
		req.TenantID = c.tenant
	}

	jobID, err := c.server.queue.Enqueue(req)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.reply(WSMessage{
		Event: EventResponse,
		Data: map[string]any{
			"success": true,
			"job_id":  jobID,
		},
	})
}

func (c *WSClient) sendError(message string) {
	c.reply(WSMessage{
		Event: EventError,
		Data: map[string]any{
			"error": message,
		},
	})
}

// reply runs on the read goroutine, which is the only closer of send
func (c *WSClient) reply(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
	}
}
