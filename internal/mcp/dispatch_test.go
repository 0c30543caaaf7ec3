package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/internal/logger"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry) {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{Level: "error", Encoding: "json", ServiceName: "test"})
	require.NoError(t, log.InitLogger())

	reg := NewRegistry()
	reg.Register(Tool{
		Name:        "echo",
		Description: "echoes its input back",
		InputSchema: objectSchema(map[string]interface{}{"text": stringProp("text to echo")}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			return args, nil
		},
	})
	return NewDispatcher(reg, log), reg
}

func rawRequest(t *testing.T, method string, params interface{}, id int) []byte {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return raw
}

// End-to-end scenario 4: initialize must echo the expected protocol
// version, server name, a tools capability, and (when a session is bound)
// a non-empty _meta.sessionId.
func TestDispatcherInitialize(t *testing.T) {
	// Arrange
	d, _ := newTestDispatcher(t)
	sess := &Session{}
	sess.ID = "sess-123"

	// Act
	resp := d.HandleRaw(context.Background(), sess, rawRequest(t, "initialize", map[string]interface{}{}, 1))

	// Assert
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "rustymail-mcp", serverInfo["name"])
	caps, ok := result["capabilities"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, caps, "tools")
	meta, ok := result["_meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sess-123", meta["sessionId"])
}

// End-to-end scenario 5: an unrecognized method returns a -32601 error and
// carries no result key at all.
func TestDispatcherUnknownMethod(t *testing.T) {
	// Arrange
	d, _ := newTestDispatcher(t)

	// Act
	resp := d.HandleRaw(context.Background(), nil, rawRequest(t, "nonexistent/method", nil, 7))

	// Assert
	require.NotNil(t, resp)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Method not found")
}

// tools/call against an unregistered name surfaces the same -32601 code,
// with the tool name quoted in the message (§4.8).
func TestDispatcherUnknownTool(t *testing.T) {
	// Arrange
	d, _ := newTestDispatcher(t)

	// Act
	resp := d.HandleRaw(context.Background(), nil, rawRequest(t, "tools/call", map[string]interface{}{
		"name": "does_not_exist",
	}, 2))

	// Assert
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "does_not_exist")
}

// tools/list surfaces every registered tool by name, feeding both the MCP
// transport and the REST dashboard catalog from the identical registry
// (§8 property 5).
func TestDispatcherToolsList(t *testing.T) {
	// Arrange
	d, reg := newTestDispatcher(t)

	// Act
	resp := d.HandleRaw(context.Background(), nil, rawRequest(t, "tools/list", nil, 3))

	// Assert
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]map[string]interface{})
	require.Len(t, tools, len(reg.List()))
	assert.Equal(t, "echo", tools[0]["name"])
}

// A notification (no id) never produces a response, even for an unknown
// method.
func TestDispatcherNotificationProducesNoResponse(t *testing.T) {
	// Arrange
	d, _ := newTestDispatcher(t)
	raw := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	// Act
	resp := d.HandleRaw(context.Background(), nil, raw)

	// Assert
	assert.Nil(t, resp)
}

// Malformed JSON gets a parse error, not a panic.
func TestDispatcherParseError(t *testing.T) {
	// Arrange
	d, _ := newTestDispatcher(t)

	// Act
	resp := d.HandleRaw(context.Background(), nil, []byte(`not json`))

	// Assert
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}
