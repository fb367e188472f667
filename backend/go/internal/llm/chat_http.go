package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"Leviosa/backend/go/internal/models"
	pkghttp "Leviosa/backend/go/pkg/http"
)

const defaultTimeout = 120 * time.Second

// ChatHTTP 直接调用 OpenAI 兼容的 /chat/completions 端点，经过带熔断的 HTTP 客户端。
type ChatHTTP struct {
	client  *pkghttp.Client
	baseURL string
	apiKey  string
	model   string
}

// NewChatHTTP 创建一个 ChatHTTP 客户端。
func NewChatHTTP(client *pkghttp.Client, baseURL, apiKey, model string) *ChatHTTP {
	return &ChatHTTP{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// GenerateContent 发送一次非流式补全请求。
// 响应中没有 choices 时返回 *ResponseError，其 Body 为原始响应体。
func (c *ChatHTTP) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	var messages []message
	if req.SystemInstruction != "" {
		messages = append(messages, message{Role: string(models.SpeakerSystem), Content: req.SystemInstruction})
	}
	messages = append(messages, userMessages(req)...)

	status, body, err := c.client.PostJSON(ctx, c.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, chatRequest{Model: c.model, Messages: messages, Temperature: req.Temperature})
	if err != nil {
		return nil, transportError("http", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, &ResponseError{StatusCode: status, Body: string(body)}
	}
	return textResponse(parsed.Choices[0].Message.Content, parsed.ID, parsed.Model), nil
}
