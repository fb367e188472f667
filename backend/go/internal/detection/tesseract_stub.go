//go:build !ocr

package detection

// NewTesseractEngine 在未启用 ocr 构建标签时返回 ErrEngineUnavailable。
// 需要本地 Tesseract 时使用 go build -tags ocr 重新构建。
func NewTesseractEngine(language string) (Engine, error) {
	return nil, ErrEngineUnavailable
}
