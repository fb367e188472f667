package llm

import (
	"errors"
	"fmt"

	"Leviosa/backend/go/internal/models"
)

// ResponseError 表示端点返回了非成功载荷（没有 choices、HTTP 错误码或无法解析的响应体）。
// Body 保留原始响应，供上层生成诊断文本。
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("generation endpoint returned unusable payload (status %d): %s", e.StatusCode, e.Body)
}

// Is 让 errors.Is(err, models.ErrGenerationEndpoint) 对 ResponseError 成立。
func (e *ResponseError) Is(target error) bool {
	return target == models.ErrGenerationEndpoint
}

// transportError 包装网络错误、超时和熔断错误。
func transportError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrGenerationEndpoint, provider, err)
}

// AsResponseError 判断 err 是否为载荷错误。
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
