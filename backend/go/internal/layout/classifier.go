package layout

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"Leviosa/backend/go/internal/models"
)

// 所有正则在包初始化时编译一次，之后只读，可被并发请求共享。
var (
	figurePattern   = regexp.MustCompile(`(?i)fig\.?|figure|diagram|plot|image|graph`)
	figureCaption   = regexp.MustCompile(`(^|\n)Fig(\.|ure)\s+\d+`)
	tablePattern    = regexp.MustCompile(`(?i)table|tabular|\|\s+\||\+-+\+`)
	tableCaption    = regexp.MustCompile(`(^|\n)Table\s+\d+`)
	columnGap       = regexp.MustCompile(`\s{2,}`)
	listItem        = regexp.MustCompile(`(?m)^(\d+\.|•|\*|-)\s`)
	equationPattern = regexp.MustCompile(`(?i)equation|=|\+|-|\*|/|\\sum|\\int|\\prod|\\div|\\approx|\bsum\b|\bint\b|\bprod\b|\bdiv\b|\bapprox\b`)
	mathSymbol      = regexp.MustCompile(`[+\-*/=(){}\[\]^]`)
	wordToken       = regexp.MustCompile(`\b\w+\b`)
	titlePattern    = regexp.MustCompile(`(?m)^[A-Z0-9][\p{L}\p{N}_\s.:]{0,100}$`)
	sectionNumber   = regexp.MustCompile(`^[A-Z]\.|\d+\.\d+|\d+\)`)
)

const (
	figureAspectRatio   = 1.5
	figureMaxTextLen    = 200
	tableMinLines       = 3
	tableAlignedShare   = 0.5
	equationSymbolRatio = 0.3
	titleMaxLen         = 100
	titleTopBand        = 0.3
)

// Classifier 根据文本内容和几何信息对 text/unknown 区域重新分类。
// 零值即可使用，无内部状态。
type Classifier struct{}

// NewClassifier 创建分类器。
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify 返回区域的副本，必要时修改其类型。
// 只有 text 和 unknown 是候选类型，因此对结果再次分类不会改变它。
func (c *Classifier) Classify(region models.Region) models.Region {
	out := region.Clone()

	text := region.Text()
	if text == "" {
		return out
	}
	if region.Type != models.RegionText && region.Type != models.RegionUnknown {
		return out
	}

	switch {
	case isFigure(text, region):
		out.Type = models.RegionFigure
	case isTable(text):
		out.Type = models.RegionTable
	case isList(text):
		out.Type = models.RegionList
	case isEquation(text):
		out.Type = models.RegionEquation
	case isTitle(text, region):
		out.Type = models.RegionTitle
	}
	return out
}

// ClassifyPage 对页面内每个区域分类，保持原有顺序。
func (c *Classifier) ClassifyPage(page models.Page) models.Page {
	results := make([]models.Region, len(page.Results))
	for i, r := range page.Results {
		results[i] = c.Classify(r)
	}
	return models.Page{Page: page.Page, Results: results}
}

// ClassifyDocument 返回重新分类后的文档副本。
func (c *Classifier) ClassifyDocument(doc *models.Document) *models.Document {
	if doc == nil {
		return nil
	}
	out := &models.Document{Pages: make([]models.Page, len(doc.Pages))}
	for i, p := range doc.Pages {
		out.Pages[i] = c.ClassifyPage(p)
	}
	return out
}

func isFigure(text string, region models.Region) bool {
	if figurePattern.MatchString(text) || figureCaption.MatchString(text) {
		return true
	}
	var ratio float64
	if h := region.BBoxRaw.Height(); h > 0 {
		ratio = region.BBoxRaw.Width() / h
	}
	return ratio > figureAspectRatio && utf8.RuneCountInString(text) < figureMaxTextLen
}

func isTable(text string) bool {
	if tablePattern.MatchString(text) || tableCaption.MatchString(text) {
		return true
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) <= tableMinLines {
		return false
	}
	aligned := 0
	for _, line := range lines {
		if len(columnGap.FindAllStringIndex(line, -1)) > 1 {
			aligned++
		}
	}
	return float64(aligned)/float64(len(lines)) > tableAlignedShare
}

func isList(text string) bool {
	return len(listItem.FindAllStringIndex(text, -1)) > 1
}

func isEquation(text string) bool {
	if !equationPattern.MatchString(text) {
		return false
	}
	symbols := len(mathSymbol.FindAllStringIndex(text, -1))
	words := len(wordToken.FindAllStringIndex(text, -1))
	return symbols > 0 && float64(symbols)/float64(words+1) > equationSymbolRatio
}

func isTitle(text string, region models.Region) bool {
	if utf8.RuneCountInString(text) > titleMaxLen {
		return false
	}
	if !titlePattern.MatchString(text) {
		return false
	}
	return region.BBoxNorm[1] < titleTopBand || sectionNumber.MatchString(text)
}
