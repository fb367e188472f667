// Package detection 封装外部 OCR / 版面检测引擎。
// 引擎句柄在进程启动时构造一次，通过依赖注入传给聚合器。
package detection

import (
	"context"
	"errors"
	"fmt"

	"Leviosa/backend/go/internal/config"
	"Leviosa/backend/go/internal/models"
	pkghttp "Leviosa/backend/go/pkg/http"
)

// ErrEngineUnavailable 表示所选引擎在当前构建中不可用。
var ErrEngineUnavailable = errors.New("detection engine not available in this build")

// Engine 是检测引擎的抽象。
type Engine interface {
	// Layout 返回页面上的版面区域，RawContent 形状由引擎决定。
	Layout(ctx context.Context, img models.PageImage) ([]models.Detection, error)
	// Lines 返回 OCR 文本行，RawContent 为 models.TextLine。
	Lines(ctx context.Context, img models.PageImage) ([]models.Detection, error)
}

// New 根据配置创建检测引擎。
func New(cfg config.DetectionConfig, client *pkghttp.Client) (Engine, error) {
	switch cfg.Engine {
	case "", "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("detection endpoint is not configured")
		}
		return NewHTTPEngine(client, cfg.Endpoint, cfg.AuthToken), nil
	case "tesseract":
		return NewTesseractEngine(cfg.Language)
	default:
		return nil, fmt.Errorf("unsupported detection engine: %s", cfg.Engine)
	}
}
