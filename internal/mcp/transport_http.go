package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailstack/internal/eventbus"
	"github.com/customeros/mailstack/internal/logger"
)

const sessionHeader = "Mcp-Session-Id"
const heartbeatInterval = 30 * time.Second

// HTTPTransport serves the JSON-RPC and SSE surfaces of the MCP server
// (§4.9), sharing one Dispatcher/Registry with the stdio proxy and the REST
// dashboard's tool listing.
type HTTPTransport struct {
	dispatcher *Dispatcher
	sessions   *SessionManager
	bus        *eventbus.Bus
	log        logger.Logger
}

func NewHTTPTransport(dispatcher *Dispatcher, sessions *SessionManager, bus *eventbus.Bus, log logger.Logger) *HTTPTransport {
	return &HTTPTransport{dispatcher: dispatcher, sessions: sessions, bus: bus, log: log}
}

// RegisterRoutes wires /mcp (JSON-RPC POST), /sse and /message (legacy
// supergateway-style split endpoints), matching §4.9's three entry points.
func (t *HTTPTransport) RegisterRoutes(r gin.IRouter) {
	r.POST("/mcp", t.handleJSONRPC)
	r.GET("/mcp", t.handleSSE)
	r.GET("/sse", t.handleSSE)
	r.POST("/message", t.handleMessage)
}

// handleJSONRPC implements the plain HTTP JSON-RPC transport: a single
// object or a batch array in, matching shape out, always HTTP 200 even
// when individual calls carry a JSON-RPC error (§4.9).
func (t *HTTPTransport) handleJSONRPC(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error"))
		return
	}

	sess := t.sessionFor(c)
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			c.JSON(http.StatusOK, errorResponse(nil, CodeParseError, "Parse error"))
			return
		}
		responses := t.dispatcher.HandleBatch(c.Request.Context(), sess, raws)
		c.JSON(http.StatusOK, responses)
		return
	}

	resp := t.dispatcher.HandleRaw(c.Request.Context(), sess, body)
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleSSE opens a long-lived event stream. A session is created (or
// resumed from Mcp-Session-Id) on first connect; Last-Event-ID replays
// anything still in that session's ring buffer (§4.9, §8 property 8).
func (t *HTTPTransport) handleSSE(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	sess := t.sessionFor(c)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionHeader, sess.ID)
	c.Status(http.StatusOK)

	fmt.Fprintf(w, ":connected\nid: %s\n\n", sess.ID)
	flusher.Flush()

	if lastEventID := c.GetHeader("Last-Event-ID"); lastEventID != "" {
		if n, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
			for _, ev := range sess.replaySince(n) {
				writeSSEEvent(w, ev)
			}
			flusher.Flush()
		}
	}

	ch := t.bus.Subscribe(sess.ID)
	defer t.bus.Unsubscribe(sess.ID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			sess.record(ev)
			writeSSEEvent(w, ev)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, ev eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Topic, data)
}

// handleMessage is the legacy POST-half of the split SSE transport: the
// JSON-RPC response is delivered over the matching GET /sse stream rather
// than in this response body, which only acknowledges receipt.
func (t *HTTPTransport) handleMessage(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error"))
		return
	}
	sess := t.sessionFor(c)
	resp := t.dispatcher.HandleRaw(c.Request.Context(), sess, body)
	if resp != nil && t.bus != nil {
		t.bus.PublishTo(sess.ID, eventbus.Topic("message"), resp)
	}
	c.Status(http.StatusAccepted)
}

// sessionFor resolves the session for this request from Mcp-Session-Id, or
// creates and registers a new one (echoing its id in the response header)
// when the header is absent or names an unknown session.
func (t *HTTPTransport) sessionFor(c *gin.Context) *Session {
	if id := c.GetHeader(sessionHeader); id != "" {
		if sess, ok := t.sessions.Get(id); ok {
			return sess
		}
	}
	sess := t.sessions.Create()
	c.Header(sessionHeader, sess.ID)
	return sess
}
