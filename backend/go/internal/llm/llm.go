package llm

import (
	"context"
	"fmt"

	"Leviosa/backend/go/internal/config"
	"Leviosa/backend/go/internal/models"
	pkghttp "Leviosa/backend/go/pkg/http"
)

// LLM 定义了所有文本生成客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewClient 是一个工厂函数，根据配置创建并返回一个实现了 LLM 接口的客户端。
// 除 ollama 外，未配置凭证时返回 models.ErrMissingCredential，调用方据此走无凭证回退路径。
// httpClient 只被 "http" 提供方使用。
func NewClient(ctx context.Context, cfg config.LLMConfig, httpClient *pkghttp.Client) (LLM, error) {
	if cfg.Provider != "ollama" && cfg.APIKey == "" {
		return nil, models.ErrMissingCredential
	}

	switch cfg.Provider {
	case "", "http":
		if httpClient == nil {
			return nil, fmt.Errorf("http provider requires an HTTP client")
		}
		return NewChatHTTP(httpClient, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL, config.Duration(cfg.Timeout, defaultTimeout))
	case "gemini":
		return NewGemini(ctx, cfg.Model, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// userMessages 把请求内容展开为 (role, text) 对。
func userMessages(req *models.GenerateContentRequest) []message {
	var out []message
	for _, c := range req.Content {
		role := string(c.Role)
		if role == "" {
			role = string(models.SpeakerUser)
		}
		out = append(out, message{Role: role, Content: c.Text()})
	}
	return out
}

// message 是 OpenAI 兼容的聊天消息。
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func textResponse(text, id, model string) *models.GenerateContentResponse {
	return &models.GenerateContentResponse{
		Content: []models.Content{{
			Parts: []*models.Part{{Text: text}},
			Role:  models.SpeakerModel,
		}},
		ResponseID:   id,
		ModelVersion: model,
	}
}
