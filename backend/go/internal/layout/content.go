package layout

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"Leviosa/backend/go/internal/models"
)

// DecodeContent 把检测引擎的原始载荷解码为统一的 RegionContent。
//
// 支持的形状：
//   - table 区域：{"html": ..., "boxes": [...]}，其它形状得到空表格
//   - 只有一个元素且以 "[" 开头的字符串列表：按字面量宽松解析后取其中的 text
//   - 字符串列表、{"text": ...} 字典列表、[bbox, [text, conf]] 或 [bbox, text] 列表
//   - 顶层 {"text": ...} 字典
//
// 其它形状（包括取不出任何文本的非空列表）保存为 raw_data，便于排查。
func DecodeContent(regionType string, raw any) models.RegionContent {
	if regionType == string(models.RegionTable) {
		return decodeTable(raw)
	}

	switch v := raw.(type) {
	case []any:
		if len(v) == 1 {
			if s, ok := v[0].(string); ok && strings.HasPrefix(s, "[") {
				return decodeLiteral(s)
			}
		}
		texts := collectTexts(v)
		if len(v) > 0 && len(texts) == 0 {
			return models.RawContent(renderRaw(raw))
		}
		return models.TextContent(strings.Join(texts, "\n"))
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return DecodeContent(regionType, items)
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return models.TextContent(text)
		}
	case models.TextLine:
		return models.TextContent(v.Text)
	}
	return models.RawContent(renderRaw(raw))
}

func decodeTable(raw any) models.RegionContent {
	m, ok := raw.(map[string]any)
	if !ok {
		return models.TableContent("", nil)
	}
	html, _ := m["html"].(string)
	cells, _ := m["boxes"].([]any)
	return models.TableContent(html, cells)
}

// decodeLiteral 解析形如 "[{'text': 'a'}, {'text': 'b'}]" 的字符串。
// YAML 流式语法兼容单引号字符串，足以覆盖这类字面量。
func decodeLiteral(s string) models.RegionContent {
	var parsed []any
	if err := yaml.Unmarshal([]byte(s), &parsed); err != nil {
		return models.TextContent(s)
	}
	var texts []string
	for _, item := range parsed {
		if text, ok := textField(item); ok {
			texts = append(texts, text)
		}
	}
	return models.TextContent(strings.Join(texts, "\n"))
}

func collectTexts(items []any) []string {
	var texts []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			texts = append(texts, s)
			continue
		}
		if text, ok := textField(item); ok {
			texts = append(texts, text)
			continue
		}
		pair, ok := item.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		switch second := pair[1].(type) {
		case []any:
			if len(second) > 0 {
				texts = append(texts, fmt.Sprint(second[0]))
			}
		case string:
			texts = append(texts, second)
		}
	}
	return texts
}

// textField 取字典中的 text 字段，兼容 JSON 与 YAML 两种解码结果。
func textField(item any) (string, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return "", false
	}
	t, ok := m["text"]
	if !ok {
		return "", false
	}
	return fmt.Sprint(t), true
}

func renderRaw(raw any) string {
	if raw == nil {
		return "null"
	}
	if s, ok := raw.(string); ok {
		return s
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(data)
}
