package markdown

import (
	"encoding/json"

	"Leviosa/backend/go/internal/models"
)

type payloadRegion struct {
	Type    models.RegionType    `json:"type"`
	BBox    models.BBox          `json:"bbox"`
	Content models.RegionContent `json:"content"`
}

type payloadPage struct {
	Page    int             `json:"page"`
	Regions []payloadRegion `json:"regions"`
}

type payload struct {
	Pages []payloadPage `json:"pages"`
}

// Payload 把页面序列化为发送给文本生成端点的 JSON。
// 区域保持页面内的阅读顺序，bbox 使用归一化坐标。
func Payload(pages []models.Page) (string, error) {
	p := payload{Pages: make([]payloadPage, 0, len(pages))}
	for _, page := range pages {
		regions := make([]payloadRegion, 0, len(page.Results))
		for _, r := range page.Results {
			regions = append(regions, payloadRegion{
				Type:    r.Type,
				BBox:    r.BBoxNorm,
				Content: r.Content,
			})
		}
		p.Pages = append(p.Pages, payloadPage{Page: page.Page, Regions: regions})
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
