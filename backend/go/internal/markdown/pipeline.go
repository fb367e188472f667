package markdown

import (
	"context"
	"fmt"
	"strings"

	"Leviosa/backend/go/internal/llm"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/internal/prompt"
	"Leviosa/backend/go/pkg/logger"
)

// 采样温度：转换需要一定灵活度，精修要求稳定输出。
const (
	ConversionTemperature float32 = 0.3
	RefineTemperature     float32 = 0.1
)

// 诊断文本前缀。端点出错时这些文本替代 markdown 返回给调用方。
const (
	responseErrorPrefix = "Error in LLM response: "
	convertErrorPrefix  = "Error converting to markdown: "
	refineErrorPrefix   = "Failed to refine markdown: "
	pageErrorPrefix     = "Error converting page "
)

// Pipeline 是 Markdown 合成流水线。gen 为 nil 表示未配置凭证，此时各模式退回原始文本。
type Pipeline struct {
	gen     llm.LLM
	prompts *prompt.Loader
	tables  *TableRenderer
	log     *logger.Logger
}

// NewPipeline 创建流水线。gen 可以为 nil。
func NewPipeline(gen llm.LLM, prompts *prompt.Loader, log *logger.Logger) *Pipeline {
	if prompts == nil {
		prompts = prompt.NewLoader(prompt.DefaultDir)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{gen: gen, prompts: prompts, tables: NewTableRenderer(), log: log}
}

// HasCredential 报告是否配置了文本生成端点。
func (p *Pipeline) HasCredential() bool {
	return p.gen != nil
}

// RawText 计算文档的确定性文本。
func (p *Pipeline) RawText(doc *models.Document) string {
	return RawText(doc, p.tables)
}

// Convert 是批量模式的便捷入口：一次调用覆盖所有页面，从不返回错误。
// 未配置凭证时 markdown 与 raw_text 完全相同。
func (p *Pipeline) Convert(ctx context.Context, doc *models.Document) models.Artifact {
	art, _ := p.convert(ctx, doc)
	return art
}

// convert 返回产物以及端点调用是否成功。
func (p *Pipeline) convert(ctx context.Context, doc *models.Document) (models.Artifact, bool) {
	raw := p.RawText(doc)
	art := models.Artifact{Markdown: raw, RawText: raw}
	if p.gen == nil {
		return art, false
	}

	md, err := p.generateDocument(ctx, doc)
	if err != nil {
		p.log.Warn(fmt.Sprintf("批量转换失败: %v", err))
		if re, ok := llm.AsResponseError(err); ok {
			art.Markdown = responseErrorPrefix + re.Body
		} else {
			art.Markdown = fmt.Sprintf("%s%v\n\nRaw text:\n%s", convertErrorPrefix, err, raw)
		}
		return art, false
	}
	art.Markdown = md
	return art, true
}

// ConvertDirect 是批量模式的直接入口。
// 未配置凭证返回 models.ErrMissingCredential，传输层错误原样返回；
// 端点返回的非成功载荷仍以诊断文本的形式放入 markdown。
func (p *Pipeline) ConvertDirect(ctx context.Context, doc *models.Document) (models.Artifact, error) {
	if p.gen == nil {
		return models.Artifact{}, models.ErrMissingCredential
	}
	raw := p.RawText(doc)
	art := models.Artifact{RawText: raw, LayoutData: doc}

	md, err := p.generateDocument(ctx, doc)
	if err != nil {
		re, ok := llm.AsResponseError(err)
		if !ok {
			return models.Artifact{}, err
		}
		p.log.Warn(fmt.Sprintf("端点返回了非成功载荷: status=%d", re.StatusCode))
		md = responseErrorPrefix + re.Body
	}
	art.Markdown = md
	return art, nil
}

// Stream 是增量模式：每页一次调用，严格按页序产出。
// 通道无缓冲，上一页被消费后才会发起下一页的调用；ctx 取消后不再发起新的调用，通道随即关闭。
func (p *Pipeline) Stream(ctx context.Context, doc *models.Document) <-chan models.PageMarkdown {
	out := make(chan models.PageMarkdown)
	go func() {
		defer close(out)
		if doc == nil {
			return
		}
		for _, page := range doc.Pages {
			if ctx.Err() != nil {
				return
			}
			item := models.PageMarkdown{Page: page.Page, Markdown: p.pageMarkdown(ctx, page)}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (p *Pipeline) pageMarkdown(ctx context.Context, page models.Page) string {
	if p.gen == nil {
		return PageRawText(page, p.tables)
	}
	system, err := p.prompts.Get(prompt.Conversion)
	if err != nil {
		return fmt.Sprintf("%s%d to markdown: %v", pageErrorPrefix, page.Page, err)
	}
	user, err := Payload([]models.Page{page})
	if err != nil {
		return fmt.Sprintf("%s%d to markdown: %v", pageErrorPrefix, page.Page, err)
	}
	md, err := p.generate(ctx, system, user, ConversionTemperature)
	if err != nil {
		p.log.Warn(fmt.Sprintf("第 %d 页转换失败: %v", page.Page, err))
		if re, ok := llm.AsResponseError(err); ok {
			return responseErrorPrefix + re.Body
		}
		return fmt.Sprintf("%s%d to markdown: %v", pageErrorPrefix, page.Page, err)
	}
	return md
}

// JoinPages 按页序用换行拼接逐页结果。
func JoinPages(pages []models.PageMarkdown) string {
	parts := make([]string, len(pages))
	for i, pm := range pages {
		parts[i] = pm.Markdown
	}
	return strings.Join(parts, "\n")
}

// Refine 是两阶段精修的便捷入口：先批量生成草稿，再用精修指令发起第二次调用。
// raw_text 不受精修影响。草稿失败或未配置凭证时直接返回草稿。
func (p *Pipeline) Refine(ctx context.Context, doc *models.Document) models.Artifact {
	draft, ok := p.convert(ctx, doc)
	if !ok {
		return draft
	}
	refined, err := p.refine(ctx, draft.Markdown)
	if err != nil {
		p.log.Warn(fmt.Sprintf("精修失败: %v", err))
		if re, isResp := llm.AsResponseError(err); isResp {
			draft.Markdown = responseErrorPrefix + re.Body
		} else {
			draft.Markdown = fmt.Sprintf("%s%v", refineErrorPrefix, err)
		}
		return draft
	}
	draft.Markdown = refined
	return draft
}

// RefineDirect 是精修的直接入口，错误传播规则与 ConvertDirect 相同。
func (p *Pipeline) RefineDirect(ctx context.Context, md string) (string, error) {
	if p.gen == nil {
		return "", models.ErrMissingCredential
	}
	refined, err := p.refine(ctx, md)
	if err != nil {
		if re, ok := llm.AsResponseError(err); ok {
			return responseErrorPrefix + re.Body, nil
		}
		return "", err
	}
	return refined, nil
}

func (p *Pipeline) refine(ctx context.Context, md string) (string, error) {
	system, err := p.prompts.Get(prompt.Refinement)
	if err != nil {
		return "", err
	}
	return p.generate(ctx, system, md, RefineTemperature)
}

func (p *Pipeline) generateDocument(ctx context.Context, doc *models.Document) (string, error) {
	system, err := p.prompts.Get(prompt.Conversion)
	if err != nil {
		return "", err
	}
	var pages []models.Page
	if doc != nil {
		pages = doc.Pages
	}
	user, err := Payload(pages)
	if err != nil {
		return "", fmt.Errorf("构建请求载荷失败: %w", err)
	}
	return p.generate(ctx, system, user, ConversionTemperature)
}

func (p *Pipeline) generate(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := p.gen.GenerateContent(ctx, models.NewTextRequest(system, user, temperature))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// IsDiagnostic 报告 markdown 是否为诊断文本而非端点的正常输出。
func IsDiagnostic(md string) bool {
	for _, prefix := range []string{responseErrorPrefix, convertErrorPrefix, refineErrorPrefix, pageErrorPrefix} {
		if strings.HasPrefix(md, prefix) {
			return true
		}
	}
	return false
}
