package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/docparse_service/service"
	"Leviosa/backend/go/internal/docparse_service/store"
	"Leviosa/backend/go/internal/markdown"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/internal/prompt"
	"Leviosa/backend/go/pkg/logger"
)

type fakeAnalyzer struct {
	gotSrc  aggregator.Source
	gotMode aggregator.Mode
}

func (f *fakeAnalyzer) Process(_ context.Context, src aggregator.Source, mode aggregator.Mode) (*models.Document, error) {
	f.gotSrc, f.gotMode = src, mode
	return &models.Document{Pages: []models.Page{{Page: 1, Results: []models.Region{
		{ID: "r", Type: models.RegionTitle, Content: models.TextContent("Intro"), Page: 1},
	}}}}, nil
}

func newTools(t *testing.T) (*Tools, *fakeAnalyzer) {
	t.Helper()
	uploads, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	analyzer := &fakeAnalyzer{}
	pipeline := markdown.NewPipeline(nil, prompt.NewLoader("testdata-missing"), logger.Discard())
	return NewTools(service.NewDocumentService(uploads, nil, analyzer, pipeline, nil, logger.Discard())), analyzer
}

func callRequest(args map[string]any) mcpgo.CallToolRequest {
	var req mcpgo.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestAnalyzeLayout(t *testing.T) {
	tools, analyzer := newTools(t)

	res, err := tools.analyzeLayout(context.Background(), callRequest(map[string]any{"input": "/data/scan.pdf"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, aggregator.ModeEnhanced, analyzer.gotMode)
	assert.Equal(t, "scan.pdf", analyzer.gotSrc.Name)
	assert.Equal(t, "/data/scan.pdf", analyzer.gotSrc.Path)

	var doc models.Document
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &doc))
	assert.Equal(t, "Intro", doc.Pages[0].Results[0].Text())

	res, err = tools.analyzeLayout(context.Background(), callRequest(map[string]any{"input": "a.png", "mode": "sideways"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.analyzeLayout(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestConvertToMarkdown_WritesOutput(t *testing.T) {
	tools, _ := newTools(t)
	out := filepath.Join(t.TempDir(), "out.md")

	res, err := tools.convertToMarkdown(context.Background(), callRequest(map[string]any{"input": "a.png", "output": out}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "--- Page 1 ---\n\nIntro\n", resultText(t, res))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, resultText(t, res), string(written))
}

func TestRefineMarkdown_NoCredential(t *testing.T) {
	tools, _ := newTools(t)
	res, err := tools.refineMarkdown(context.Background(), callRequest(map[string]any{"markdown": "# x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), models.ErrMissingCredential.Error())
}

func TestRegister(t *testing.T) {
	tools, _ := newTools(t)
	s := server.NewMCPServer("leviosa", "test", server.WithToolCapabilities(false))
	assert.NotPanics(t, func() { tools.Register(s) })
}
