//go:build ocr

package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"Leviosa/backend/go/internal/models"
)

// TesseractEngine 使用本地 Tesseract 做检测。Layout 返回文本块，Lines 返回文本行。
// gosseract.Client 不是并发安全的，每次调用单独创建。
type TesseractEngine struct {
	language      string
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine 创建 Tesseract 引擎，language 例如 "eng" 或 "eng+chi_sim"。
func NewTesseractEngine(language string) (Engine, error) {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language, clientFactory: gosseract.NewClient}, nil
}

// Layout 实现 Engine。
func (e *TesseractEngine) Layout(ctx context.Context, img models.PageImage) ([]models.Detection, error) {
	boxes, err := e.boxes(ctx, img, gosseract.RIL_BLOCK)
	if err != nil {
		return nil, err
	}
	out := make([]models.Detection, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, models.Detection{
			Type: string(models.RegionText),
			BBox: toBBox(b),
			RawContent: []any{map[string]any{
				"text":       strings.TrimSpace(b.Word),
				"confidence": b.Confidence / 100,
			}},
		})
	}
	return out, nil
}

// Lines 实现 Engine。
func (e *TesseractEngine) Lines(ctx context.Context, img models.PageImage) ([]models.Detection, error) {
	boxes, err := e.boxes(ctx, img, gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, err
	}
	out := make([]models.Detection, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, models.Detection{
			Type:       string(models.RegionText),
			BBox:       toBBox(b),
			RawContent: models.TextLine{Text: b.Word, Confidence: b.Confidence / 100},
		})
	}
	return out, nil
}

func (e *TesseractEngine) boxes(ctx context.Context, img models.PageImage, level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.language); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("recognize page %d: %w", img.Page, err)
	}
	return boxes, nil
}

func toBBox(b gosseract.BoundingBox) models.BBox {
	return models.BBox{
		float64(b.Box.Min.X),
		float64(b.Box.Min.Y),
		float64(b.Box.Max.X),
		float64(b.Box.Max.Y),
	}
}
