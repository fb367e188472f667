// Package markdown 把版面分析得到的 Document 合成为 Markdown。
//
// 提供三种模式：批量（一次调用覆盖全文）、增量（逐页调用并逐页产出）以及两阶段精修。
// 所有模式的 raw_text 都由 RawText 确定性地计算，不依赖文本生成端点。
package markdown

import (
	"fmt"
	"strings"

	"Leviosa/backend/go/internal/models"
)

// PageMarker 返回页分隔标记行（不含换行）。
func PageMarker(page int) string {
	return fmt.Sprintf("--- Page %d ---", page)
}

// RawText 按页序和区域顺序拼接文本。
// 第一页以 "--- Page n ---\n\n" 开头，之后每页以 "\n--- Page n ---\n\n" 开头，
// 每段非空文本后跟一个换行。没有文本的表格区域使用其 HTML 转换后的 Markdown。
func RawText(doc *models.Document, tables *TableRenderer) string {
	if doc == nil {
		return ""
	}
	var sb strings.Builder
	for i, page := range doc.Pages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(PageMarker(page.Page))
		sb.WriteString("\n\n")
		writeRegions(&sb, page.Results, tables)
	}
	return sb.String()
}

// PageRawText 返回单页的文本，用于增量模式下的无凭证回退。
func PageRawText(page models.Page, tables *TableRenderer) string {
	var sb strings.Builder
	writeRegions(&sb, page.Results, tables)
	return sb.String()
}

func writeRegions(sb *strings.Builder, regions []models.Region, tables *TableRenderer) {
	for _, r := range regions {
		text := regionText(r, tables)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
}

func regionText(r models.Region, tables *TableRenderer) string {
	switch r.Content.Kind {
	case models.ContentText:
		return r.Content.Text
	case models.ContentTable:
		if tables == nil {
			return ""
		}
		return tables.Render(r.Content.HTML)
	default:
		return ""
	}
}
