package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"Leviosa/backend/go/internal/models"
	pkghttp "Leviosa/backend/go/pkg/http"
)

// HTTPEngine 调用远程检测服务：
//
//	POST {endpoint}/layout  {"image_base64": "...", "page": n}
//	POST {endpoint}/ocr     {"image_base64": "...", "page": n}
//
// 两者都返回 {"regions": [...]}，bbox 可以是 [x1,y1,x2,y2] 或四点多边形。
type HTTPEngine struct {
	client   *pkghttp.Client
	endpoint string
	token    string
}

// NewHTTPEngine 创建一个 HTTPEngine。
func NewHTTPEngine(client *pkghttp.Client, endpoint, token string) *HTTPEngine {
	return &HTTPEngine{client: client, endpoint: strings.TrimRight(endpoint, "/"), token: token}
}

type detectRequest struct {
	ImageBase64 string `json:"image_base64"`
	Page        int    `json:"page"`
}

type detectRegion struct {
	Type       string          `json:"type"`
	BBox       json.RawMessage `json:"bbox"`
	Res        any             `json:"res"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
}

type detectResponse struct {
	Regions []detectRegion `json:"regions"`
}

// Layout 实现 Engine。
func (e *HTTPEngine) Layout(ctx context.Context, img models.PageImage) ([]models.Detection, error) {
	regions, err := e.call(ctx, "/layout", img)
	if err != nil {
		return nil, err
	}
	out := make([]models.Detection, 0, len(regions))
	for i, r := range regions {
		bbox, err := parseBBox(r.BBox)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		out = append(out, models.Detection{Type: r.Type, BBox: bbox, RawContent: r.Res})
	}
	return out, nil
}

// Lines 实现 Engine。
func (e *HTTPEngine) Lines(ctx context.Context, img models.PageImage) ([]models.Detection, error) {
	regions, err := e.call(ctx, "/ocr", img)
	if err != nil {
		return nil, err
	}
	out := make([]models.Detection, 0, len(regions))
	for i, r := range regions {
		bbox, err := parseBBox(r.BBox)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, models.Detection{
			Type:       string(models.RegionText),
			BBox:       bbox,
			RawContent: models.TextLine{Text: r.Text, Confidence: r.Confidence},
		})
	}
	return out, nil
}

func (e *HTTPEngine) call(ctx context.Context, path string, img models.PageImage) ([]detectRegion, error) {
	headers := map[string]string{}
	if e.token != "" {
		headers["X-Internal-Token"] = e.token
	}
	status, body, err := e.client.PostJSON(ctx, e.endpoint+path, headers, detectRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(img.Data),
		Page:        img.Page,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if len(body) > 1024 {
			body = body[:1024]
		}
		return nil, fmt.Errorf("detection failed: status %d: %s", status, string(body))
	}
	var parsed detectResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode detection response: %w", err)
	}
	return parsed.Regions, nil
}

// parseBBox 接受 [x1,y1,x2,y2] 或 [[x,y],[x,y],[x,y],[x,y]] 两种形式，后者取外接矩形。
func parseBBox(raw json.RawMessage) (models.BBox, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.BBox{}, nil
	}
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) != 4 {
			return models.BBox{}, fmt.Errorf("bbox must have 4 values, got %d", len(flat))
		}
		return models.BBox{flat[0], flat[1], flat[2], flat[3]}, nil
	}
	var points [][]float64
	if err := json.Unmarshal(raw, &points); err != nil {
		return models.BBox{}, fmt.Errorf("unrecognized bbox %s", string(raw))
	}
	if len(points) == 0 {
		return models.BBox{}, fmt.Errorf("empty bbox polygon")
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		if len(p) < 2 {
			return models.BBox{}, fmt.Errorf("bbox point must have 2 values")
		}
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}
	return models.BBox{minX, minY, maxX, maxY}, nil
}
