package markdown

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// TableRenderer 把检测引擎给出的表格 HTML 转为 Markdown 表格。
// converter 构建后只读，可在请求之间共享。
type TableRenderer struct {
	conv *converter.Converter
}

// NewTableRenderer 创建一个启用表格插件的转换器。
func NewTableRenderer() *TableRenderer {
	return &TableRenderer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Render 返回 HTML 对应的 Markdown。转换失败时退回原始 HTML，空输入返回空字符串。
func (t *TableRenderer) Render(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := t.conv.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(md)
}
