package models

import (
	"encoding/json"
	"fmt"
)

// RegionType 定义了版面区域的语义类别。
type RegionType string

const (
	RegionText     RegionType = "text"     // 普通正文。
	RegionTitle    RegionType = "title"    // 标题或小节标题。
	RegionList     RegionType = "list"     // 列表。
	RegionTable    RegionType = "table"    // 表格。
	RegionFigure   RegionType = "figure"   // 图片、图表或其标题。
	RegionEquation RegionType = "equation" // 公式。
	RegionUnknown  RegionType = "unknown"  // 检测引擎无法判断的区域。
)

// BBox 是 [x1, y1, x2, y2] 形式的矩形框。
type BBox [4]float64

// Width 返回框的宽度。
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height 返回框的高度。
func (b BBox) Height() float64 { return b[3] - b[1] }

// Region 是页面上一个被检测并（可能）被重新分类的区域。
type Region struct {
	ID            string        `json:"region_id"`                // 区域唯一标识，例如 "region_<hex>"。
	Type          RegionType    `json:"region_type"`              // 区域类别。
	BBoxRaw       BBox          `json:"bbox_raw"`                 // 像素坐标。
	BBoxNorm      BBox          `json:"bbox_norm"`                // 相对页面宽高归一化后的坐标，保留 6 位小数。
	Content       RegionContent `json:"content"`                  // 区域内容。
	Page          int           `json:"page"`                     // 所在页码，从 1 开始。
	Confidence    *float64      `json:"confidence,omitempty"`     // 仅 OCR 文本行模式下填充。
	LowConfidence bool          `json:"low_confidence,omitempty"` // 仅 OCR 文本行模式下填充。
}

// Text 返回区域的文本内容，非文本内容返回空字符串。
func (r Region) Text() string {
	return r.Content.Text
}

// Page 表示文档中的一页及其按阅读顺序排列的区域。
type Page struct {
	Page    int      `json:"page"`
	Results []Region `json:"results"`
}

// Document 是由多页组成的完整文档，页序与源文件一致。
type Document struct {
	Pages []Page `json:"pages"`
}

// Clone 返回文档的深拷贝，供启发式处理在副本上运行。
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Pages: make([]Page, len(d.Pages))}
	for i, p := range d.Pages {
		out.Pages[i] = p.Clone()
	}
	return out
}

// Clone 返回页面的深拷贝。
func (p Page) Clone() Page {
	results := make([]Region, len(p.Results))
	for i, r := range p.Results {
		results[i] = r.Clone()
	}
	return Page{Page: p.Page, Results: results}
}

// Clone 返回区域的深拷贝。
func (r Region) Clone() Region {
	out := r
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.Content.Cells != nil {
		out.Content.Cells = append([]any(nil), r.Content.Cells...)
	}
	return out
}

// ContentKind 标识 RegionContent 当前承载的变体。
type ContentKind int

const (
	ContentText  ContentKind = iota // {"text": ...}
	ContentTable                    // {"html": ..., "cells": [...]}
	ContentRaw                      // {"raw_data": ...}
)

// RegionContent 是区域内容的标签联合体。
// 序列化时只输出当前变体对应的字段。
type RegionContent struct {
	Kind    ContentKind
	Text    string
	HTML    string
	Cells   []any
	RawData string
}

// TextContent 构造文本变体。
func TextContent(text string) RegionContent {
	return RegionContent{Kind: ContentText, Text: text}
}

// TableContent 构造表格变体。
func TableContent(html string, cells []any) RegionContent {
	if cells == nil {
		cells = []any{}
	}
	return RegionContent{Kind: ContentTable, HTML: html, Cells: cells}
}

// RawContent 构造原始诊断变体。
func RawContent(raw string) RegionContent {
	return RegionContent{Kind: ContentRaw, RawData: raw}
}

// MarshalJSON 实现 json.Marshaler。
func (c RegionContent) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentText:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{c.Text})
	case ContentTable:
		cells := c.Cells
		if cells == nil {
			cells = []any{}
		}
		return json.Marshal(struct {
			HTML  string `json:"html"`
			Cells []any  `json:"cells"`
		}{c.HTML, cells})
	case ContentRaw:
		return json.Marshal(struct {
			RawData string `json:"raw_data"`
		}{c.RawData})
	default:
		return nil, fmt.Errorf("unknown content kind %d", c.Kind)
	}
}

// UnmarshalJSON 根据出现的键推断变体。
func (c *RegionContent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = RegionContent{}
	if raw, ok := fields["text"]; ok {
		c.Kind = ContentText
		return json.Unmarshal(raw, &c.Text)
	}
	_, hasHTML := fields["html"]
	_, hasCells := fields["cells"]
	if hasHTML || hasCells {
		c.Kind = ContentTable
		if hasHTML {
			if err := json.Unmarshal(fields["html"], &c.HTML); err != nil {
				return err
			}
		}
		if hasCells {
			if err := json.Unmarshal(fields["cells"], &c.Cells); err != nil {
				return err
			}
		}
		if c.Cells == nil {
			c.Cells = []any{}
		}
		return nil
	}
	c.Kind = ContentRaw
	if raw, ok := fields["raw_data"]; ok {
		return json.Unmarshal(raw, &c.RawData)
	}
	return nil
}
