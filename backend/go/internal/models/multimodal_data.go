package models

import "time"

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerSystem    SpeakerRole = "system"    // 系统指令。
	SpeakerUser      SpeakerRole = "user"      // 用户角色。
	SpeakerAssistant SpeakerRole = "assistant" // 助手角色。
	SpeakerModel     SpeakerRole = "model"     // 模型角色。
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	// 可选。构成单个消息的部分列表。
	Parts []*Part `json:"parts,omitempty"`
	// 可选。内容的生产者。
	Role SpeakerRole `json:"role,omitempty"`
}

// Part 定义了消息的单个部分。这里只需要文本。
type Part struct {
	Text string `json:"text,omitempty"`
}

// Text 拼接所有部分的文本。
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if p != nil {
			out += p.Text
		}
	}
	return out
}

// GenerateContentRequest 定义了生成内容的请求结构。
type GenerateContentRequest struct {
	SystemInstruction string    `json:"systemInstruction,omitempty"` // 系统指令，来自提示词配置。
	Content           []Content `json:"content,omitempty"`           // 请求的内容列表。
	Temperature       *float32  `json:"temperature,omitempty"`       // 采样温度，为空时使用提供方默认值。
}

// NewTextRequest 构造一个 "系统指令 + 单条用户消息" 的请求。
func NewTextRequest(system, user string, temperature float32) *GenerateContentRequest {
	t := temperature
	return &GenerateContentRequest{
		SystemInstruction: system,
		Content: []Content{{
			Role:  SpeakerUser,
			Parts: []*Part{{Text: user}},
		}},
		Temperature: &t,
	}
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`      // 响应的内容列表。
	CreateTime   time.Time `json:"createTime,omitempty"`   // 响应创建时间。
	ResponseID   string    `json:"responseId,omitempty"`   // 响应ID。
	ModelVersion string    `json:"modelVersion,omitempty"` // 模型版本。
}

// Text 返回第一条候选内容的文本。
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text()
}
