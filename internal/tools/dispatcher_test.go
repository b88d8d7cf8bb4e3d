package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(testExecutor(), "test")
}

func decodeResponse(t *testing.T, raw []byte) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHandleParseError(t *testing.T) {
	resp := decodeResponse(t, testDispatcher().Handle(context.Background(), []byte("{not json")))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrParse, resp.Error.Code)
}

func TestHandleRejectsWrongVersion(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{JSONRPC: "1.0", ID: float64(1), Method: "ping"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidRequest, resp.Error.Code)
}

func TestHandleMethodNotFound(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: float64(1), Method: "shrug"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrMethodNotFound, resp.Error.Code)
	assert.Equal(t, float64(1), resp.ID, "error responses echo the request id")
}

func TestHandleInitialize(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{
		JSONRPC: "2.0", ID: float64(1), Method: "initialize",
		Params: json.RawMessage(`{"protocolVersion":"2024-11-05","clientInfo":{"name":"client","version":"1.0"}}`),
	})
	require.Nil(t, resp.Error)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestHandlePing(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: float64(7), Method: "ping"})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{}`, string(resp.Result))
}

func TestHandleToolsList(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/list"})
	require.Nil(t, resp.Error)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Len(t, result.Tools, 15)
}

func TestHandleCallUnknownTool(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{
		JSONRPC: "2.0", ID: float64(1), Method: "tools/call",
		Params: json.RawMessage(`{"name":"make_coffee","arguments":{}}`),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrMethodNotFound, resp.Error.Code)
}

func TestHandleResources(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: float64(1), Method: "resources/list"})
	require.Nil(t, resp.Error)

	var list ListResourcesResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Resources, 2)

	resp = d.HandleRequest(context.Background(), Request{
		JSONRPC: "2.0", ID: float64(2), Method: "resources/read",
		Params: json.RawMessage(`{"uri":"dshield://schema/field-mappings"}`),
	})
	require.Nil(t, resp.Error)

	var read ReadResourceResult
	require.NoError(t, json.Unmarshal(resp.Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Contains(t, read.Contents[0].Text, "source.ip")

	resp = d.HandleRequest(context.Background(), Request{
		JSONRPC: "2.0", ID: float64(3), Method: "resources/read",
		Params: json.RawMessage(`{"uri":"dshield://nope"}`),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidParams, resp.Error.Code)
}

func TestHandlePrompts(t *testing.T) {
	d := testDispatcher()
	resp := d.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: float64(1), Method: "prompts/list"})
	require.Nil(t, resp.Error)

	var list ListPromptsResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Prompts, 2)

	resp = d.HandleRequest(context.Background(), Request{
		JSONRPC: "2.0", ID: float64(2), Method: "prompts/get",
		Params: json.RawMessage(`{"name":"investigate_ip","arguments":{"ip_address":"203.0.113.7"}}`),
	})
	require.Nil(t, resp.Error)

	var prompt GetPromptResult
	require.NoError(t, json.Unmarshal(resp.Result, &prompt))
	require.Len(t, prompt.Messages, 1)
	assert.Contains(t, prompt.Messages[0].Content.Text, "203.0.113.7")
}

func TestResultHelpers(t *testing.T) {
	r := NewJSONResult(map[string]int{"n": 1})
	require.Len(t, r.Content, 1)
	assert.False(t, r.IsError)
	assert.JSONEq(t, `{"n":1}`, r.Content[0].Text)

	e := NewErrorResult(assert.AnError)
	assert.True(t, e.IsError)
	require.Len(t, e.Content, 1)
	assert.Equal(t, assert.AnError.Error(), e.Content[0].Text)
}
