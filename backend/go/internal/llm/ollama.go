package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	olla "github.com/ollama/ollama/api"

	"Leviosa/backend/go/internal/models"
)

// Ollama 是一个用于 Ollama API 的 LLM 客户端，本地部署时不需要凭证。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//	timeout: 单次调用的超时时间。
//
// 返回值:
//
//	*Ollama: 新创建的 Ollama 客户端实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllama(model, baseURL string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := &http.Client{Timeout: timeout}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// GenerateContent 使用 Ollama 的 chat 接口（非流式）生成内容。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	messages := make([]olla.Message, 0, len(req.Content)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, olla.Message{Role: string(models.SpeakerSystem), Content: req.SystemInstruction})
	}
	for _, m := range userMessages(req) {
		messages = append(messages, olla.Message{Role: m.Role, Content: m.Content})
	}

	chatReq := &olla.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &[]bool{false}[0], // 设置为非流式传输。
	}
	if req.Temperature != nil {
		chatReq.Options = map[string]any{"temperature": *req.Temperature}
	}

	var result *olla.ChatResponse
	err := o.client.Chat(ctx, chatReq, func(resp olla.ChatResponse) error {
		result = &resp
		return nil
	})
	if err != nil {
		var statusErr olla.StatusError
		if errors.As(err, &statusErr) {
			return nil, &ResponseError{StatusCode: statusErr.StatusCode, Body: statusErr.ErrorMessage}
		}
		return nil, transportError("ollama", err)
	}
	if result == nil {
		return nil, &ResponseError{StatusCode: http.StatusOK, Body: "empty response from ollama"}
	}
	return textResponse(result.Message.Content, "", result.Model), nil
}
