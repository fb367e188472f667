package layout

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"Leviosa/backend/go/internal/models"
)

const (
	// NoRegionsText 是空页面占位区域的文本。
	NoRegionsText = "No regions detected"
	// LowConfidenceThreshold 低于该置信度的文本行会被标记。
	LowConfidenceThreshold = 0.7
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// IDFunc 生成区域 ID。
type IDFunc func() string

// NewRegionID 返回 "region_" 加 32 位十六进制的随机 ID。
func NewRegionID() string {
	return "region_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Assembler 负责坐标归一化、内容解码以及阅读顺序排序。
type Assembler struct {
	newID IDFunc
}

// AssemblerOption 配置 Assembler。
type AssemblerOption func(*Assembler)

// WithIDFunc 替换区域 ID 生成器，测试中用于得到确定的 ID。
func WithIDFunc(fn IDFunc) AssemblerOption {
	return func(a *Assembler) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// NewAssembler 创建一个新的 Assembler。
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{newID: NewRegionID}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble 把一页的检测结果组装成按阅读顺序排列的 Page。
// 没有任何检测结果时返回一个覆盖整页的 unknown 占位区域。
func (a *Assembler) Assemble(page int, detections []models.Detection, width, height float64) models.Page {
	if len(detections) == 0 {
		return models.Page{Page: page, Results: []models.Region{{
			ID:       a.newID(),
			Type:     models.RegionUnknown,
			BBoxRaw:  models.BBox{0, 0, width, height},
			BBoxNorm: models.BBox{0, 0, 1, 1},
			Content:  models.TextContent(NoRegionsText),
			Page:     page,
		}}}
	}

	results := make([]models.Region, 0, len(detections))
	for _, det := range detections {
		regionType := det.Type
		if regionType == "" {
			regionType = string(models.RegionUnknown)
		}
		results = append(results, models.Region{
			ID:       a.newID(),
			Type:     models.RegionType(regionType),
			BBoxRaw:  det.BBox,
			BBoxNorm: Normalize(det.BBox, width, height),
			Content:  DecodeContent(regionType, det.RawContent),
			Page:     page,
		})
	}
	sortByTop(results)
	return models.Page{Page: page, Results: results}
}

// AssembleLines 组装 OCR 文本行。文本中的空白被折叠，置信度保留 4 位小数。
// 没有文本行时返回空页面，不生成占位区域。
func (a *Assembler) AssembleLines(page int, lines []models.Detection, width, height float64) models.Page {
	results := make([]models.Region, 0, len(lines))
	for _, det := range lines {
		line := toTextLine(det.RawContent)
		conf := round(line.Confidence, 4)
		results = append(results, models.Region{
			ID:            a.newID(),
			Type:          models.RegionText,
			BBoxRaw:       det.BBox,
			BBoxNorm:      Normalize(det.BBox, width, height),
			Content:       models.TextContent(collapseWhitespace(line.Text)),
			Page:          page,
			Confidence:    &conf,
			LowConfidence: line.Confidence < LowConfidenceThreshold,
		})
	}
	sortByTop(results)
	return models.Page{Page: page, Results: results}
}

// Normalize 把像素坐标除以页面宽高并保留 6 位小数。
// 页面面积为 0 时原样返回，超出 [0,1] 的值不做截断。
func Normalize(b models.BBox, width, height float64) models.BBox {
	if width <= 0 || height <= 0 {
		return b
	}
	return models.BBox{
		round(b[0]/width, 6),
		round(b[1]/height, 6),
		round(b[2]/width, 6),
		round(b[3]/height, 6),
	}
}

// sortByTop 按归一化后的上边界稳定排序，同一高度保持检测顺序。
func sortByTop(regions []models.Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].BBoxNorm[1] < regions[j].BBoxNorm[1]
	})
}

func toTextLine(raw any) models.TextLine {
	switch v := raw.(type) {
	case models.TextLine:
		return v
	case *models.TextLine:
		if v != nil {
			return *v
		}
	case map[string]any:
		var line models.TextLine
		line.Text, _ = v["text"].(string)
		line.Confidence, _ = v["confidence"].(float64)
		return line
	case string:
		return models.TextLine{Text: v}
	}
	return models.TextLine{}
}

func collapseWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
