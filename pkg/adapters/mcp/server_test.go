package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/internal/workflows"
	"github.com/epivigil/epivigil/pkg/registry"
)

type fakeEngine struct {
	report *workflows.ReportResult
	chat   *workflows.ChatResult

	gotReport workflows.ReportRequest
	gotChat   workflows.ChatRequest
}

func (f *fakeEngine) Report(_ context.Context, req workflows.ReportRequest) (*workflows.ReportResult, error) {
	f.gotReport = req
	return f.report, nil
}

func (f *fakeEngine) Chat(_ context.Context, req workflows.ChatRequest) (*workflows.ChatResult, error) {
	f.gotChat = req
	return f.chat, nil
}

func newTestRegistry() *registry.Registry {
	reg := registry.New()
	reg.Register(registry.Func{
		ToolName:        "get_metrics",
		ToolDescription: "Current SRAG metrics",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{"type": "integer"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			return "taxa de aumento: 15%", nil
		},
	})
	return reg
}

func call(t *testing.T, srv *Server, payload string) string {
	t.Helper()
	resp := srv.mcpServer.HandleMessage(context.Background(), json.RawMessage(payload))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(raw)
}

func TestToolsListed(t *testing.T) {
	srv := NewServer(&fakeEngine{}, newTestRegistry())

	out := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	assert.Contains(t, out, "generate_report")
	assert.Contains(t, out, "chat")
	assert.Contains(t, out, "get_metrics")
}

func TestDomainToolDispatch(t *testing.T) {
	srv := NewServer(&fakeEngine{}, newTestRegistry())

	out := call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_metrics","arguments":{"days":30}}}`)

	assert.Contains(t, out, "taxa de aumento: 15%")
}

func TestChatTool(t *testing.T) {
	engine := &fakeEngine{chat: &workflows.ChatResult{Response: "resposta final", ThreadID: "t-1"}}
	srv := NewServer(engine, newTestRegistry())

	out := call(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"chat","arguments":{"message":"Quantos casos?","thread_id":"t-1"}}}`)

	assert.Equal(t, "Quantos casos?", engine.gotChat.Message)
	assert.Equal(t, "t-1", engine.gotChat.ThreadID)
	assert.Contains(t, out, "resposta final")
}

func TestChatToolRequiresMessage(t *testing.T) {
	srv := NewServer(&fakeEngine{}, newTestRegistry())

	out := call(t, srv, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"chat","arguments":{}}}`)

	assert.Contains(t, out, "message parameter is required")
}

func TestGenerateReportTool(t *testing.T) {
	engine := &fakeEngine{report: &workflows.ReportResult{Report: "# Relatório SRAG", ThreadID: "r-1"}}
	srv := NewServer(engine, newTestRegistry())

	out := call(t, srv, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"generate_report","arguments":{"days":7,"state":"SP"}}}`)

	assert.Equal(t, 7, engine.gotReport.Days)
	assert.Equal(t, "SP", engine.gotReport.Region)
	assert.Contains(t, out, "Relatório SRAG")
}
