package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/customeros/mailstack/internal/logger"
)

const protocolVersion = "2025-03-26"

// JSON-RPC 2.0 error codes used throughout the MCP transports (§4.9/§7).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is one JSON-RPC 2.0 call. ID is raw so a null/number/string id
// round-trips untouched; its absence marks a notification (§4.9).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r Request) isNotification() bool { return len(r.ID) == 0 }

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func resultResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// Dispatcher routes JSON-RPC requests to the tool registry, shared by all
// three transports (stdio forwards over HTTP instead of calling this
// directly — see Proxy).
type Dispatcher struct {
	registry *Registry
	log      logger.Logger
}

func NewDispatcher(registry *Registry, log logger.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log}
}

// HandleRaw parses one line/body of input and returns the response to
// send, or nil if none is required (malformed non-object JSON still gets a
// -32600/-32700 response; a notification gets nil).
func (d *Dispatcher) HandleRaw(ctx context.Context, sess *Session, raw []byte) *Response {
	var peek interface{}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return errorResponse(nil, CodeParseError, "Parse error")
	}
	if _, ok := peek.(map[string]interface{}); !ok {
		return errorResponse(nil, CodeInvalidRequest, "Invalid Request")
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, CodeInvalidRequest, "Invalid Request")
	}
	return d.Handle(ctx, sess, req)
}

// HandleBatch processes a JSON array of requests, returning one response
// per non-notification entry, order preserved (§4.9 HTTP JSON-RPC batch).
func (d *Dispatcher) HandleBatch(ctx context.Context, sess *Session, raws []json.RawMessage) []*Response {
	var out []*Response
	for _, raw := range raws {
		if resp := d.HandleRaw(ctx, sess, raw); resp != nil {
			out = append(out, resp)
		}
	}
	return out
}

func (d *Dispatcher) Handle(ctx context.Context, sess *Session, req Request) *Response {
	if sess != nil {
		sess.touch()
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(req, sess)
	case "notifications/initialized":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]interface{}{"pong": true})
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, req, sess)
	default:
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (d *Dispatcher) handleInitialize(req Request, sess *Session) *Response {
	result := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]interface{}{
			"name":    "rustymail-mcp",
			"version": "1.0.0",
		},
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
	}
	if sess != nil {
		result["_meta"] = map[string]interface{}{"sessionId": sess.ID}
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleToolsList(req Request) *Response {
	tools := d.registry.List()
	listed := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		listed = append(listed, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	return resultResponse(req.ID, map[string]interface{}{"tools": listed})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request, sess *Session) *Response {
	if req.isNotification() {
		return nil
	}
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
		}
	}

	tool, ok := d.registry.Get(params.Name)
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name))
	}

	result, err := tool.Handler(ctx, sess, params.Arguments)
	if err != nil {
		return resultResponse(req.ID, map[string]interface{}{
			"content": []map[string]interface{}{{"type": "text", "text": err.Error()}},
			"isError": true,
		})
	}

	text, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return errorResponse(req.ID, CodeInternalError, "failed to encode tool result")
	}
	return resultResponse(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": string(text)}},
		"isError": false,
	})
}
