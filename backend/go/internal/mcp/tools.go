// Package mcp 把文档解析能力注册为 MCP 工具，供智能体通过 stdio / SSE / streamable HTTP 调用。
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/docparse_service/service"
)

// 工具名称。
const (
	ToolAnalyzeLayout     = "analyze_layout"
	ToolConvertToMarkdown = "convert_to_markdown"
	ToolRefineMarkdown    = "refine_markdown"
)

// Tools 持有工具处理函数依赖的服务。
type Tools struct {
	svc *service.DocumentService
}

// NewTools 创建工具集合。
func NewTools(svc *service.DocumentService) *Tools {
	return &Tools{svc: svc}
}

// Register 把所有工具注册到 MCP 服务器。
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcpgo.NewTool(ToolAnalyzeLayout,
		mcpgo.WithDescription("Detect layout regions of a PDF or image and return them in reading order as JSON"),
		mcpgo.WithString("input",
			mcpgo.Required(),
			mcpgo.Description("Path to the input PDF, PNG or JPEG file"),
		),
		mcpgo.WithString("mode",
			mcpgo.Description("layout, enhanced (heuristic reclassification) or ocr (text lines)"),
			mcpgo.Enum(string(aggregator.ModeLayout), string(aggregator.ModeEnhanced), string(aggregator.ModeOCR)),
		),
	), t.analyzeLayout)

	s.AddTool(mcpgo.NewTool(ToolConvertToMarkdown,
		mcpgo.WithDescription("Reconstruct a PDF or image as Markdown"),
		mcpgo.WithString("input",
			mcpgo.Required(),
			mcpgo.Description("Path to the input PDF, PNG or JPEG file"),
		),
		mcpgo.WithBoolean("refine",
			mcpgo.Description("Run a second refinement pass over the draft"),
		),
		mcpgo.WithString("output",
			mcpgo.Description("Path to the output markdown file"),
		),
	), t.convertToMarkdown)

	s.AddTool(mcpgo.NewTool(ToolRefineMarkdown,
		mcpgo.WithDescription("Clean up and normalise an existing Markdown document"),
		mcpgo.WithString("markdown",
			mcpgo.Required(),
			mcpgo.Description("Markdown text to refine"),
		),
	), t.refineMarkdown)
}

func (t *Tools) analyzeLayout(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	input, err := request.RequireString("input")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	mode := aggregator.Mode(request.GetString("mode", string(aggregator.ModeEnhanced)))
	switch mode {
	case aggregator.ModeLayout, aggregator.ModeEnhanced, aggregator.ModeOCR:
	default:
		return mcpgo.NewToolResultError(fmt.Sprintf("unknown mode: %s", mode)), nil
	}

	doc, err := t.svc.Analyze(ctx, fileSource(input), mode)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to analyze file: %v", err)), nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (t *Tools) convertToMarkdown(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	input, err := request.RequireString("input")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	src := fileSource(input)
	var md string
	if request.GetBool("refine", false) {
		art, err := t.svc.Refine(ctx, src)
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Failed to convert file: %v", err)), nil
		}
		md = art.Markdown
	} else {
		art, err := t.svc.Convert(ctx, src, aggregator.ModeEnhanced)
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Failed to convert file: %v", err)), nil
		}
		md = art.Markdown
	}

	if output := request.GetString("output", ""); output != "" {
		if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Failed to write output file: %v", err)), nil
		}
	}
	return mcpgo.NewToolResultText(md), nil
}

func (t *Tools) refineMarkdown(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	md, err := request.RequireString("markdown")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	refined, err := t.svc.RefineMarkdown(ctx, md)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to refine markdown: %v", err)), nil
	}
	return mcpgo.NewToolResultText(refined), nil
}

func fileSource(path string) aggregator.Source {
	return aggregator.Source{Name: filepath.Base(path), Path: path}
}
