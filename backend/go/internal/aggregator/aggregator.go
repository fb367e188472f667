// Package aggregator 把单张图片或多页 PDF 逐页送入检测引擎，组装成完整的 Document。
package aggregator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"Leviosa/backend/go/internal/detection"
	"Leviosa/backend/go/internal/layout"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/pkg/logger"
)

// Mode 选择每页的处理方式。
type Mode string

const (
	ModeLayout   Mode = "layout"   // 检测 + 组装
	ModeEnhanced Mode = "enhanced" // 检测 + 组装 + 启发式重新分类
	ModeOCR      Mode = "ocr"      // 文本行识别
)

// DefaultMaxPages 是每个文档默认处理的最大页数。
const DefaultMaxPages = 3

// Source 是待处理的文档。Data 为空时从 Path 读取。
type Source struct {
	Name string
	Path string
	Data []byte
}

// Aggregator 顺序处理页面并汇总为 Document。
type Aggregator struct {
	engine     detection.Engine
	rasterizer Rasterizer
	assembler  *layout.Assembler
	classifier *layout.Classifier
	maxPages   int
	log        *logger.Logger
}

// Option 配置 Aggregator。
type Option func(*Aggregator)

// WithMaxPages 设置页数上限，<= 0 时保持默认值。
func WithMaxPages(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxPages = n
		}
	}
}

// WithAssembler 替换组装器，测试中用于注入确定的区域 ID。
func WithAssembler(asm *layout.Assembler) Option {
	return func(a *Aggregator) {
		if asm != nil {
			a.assembler = asm
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(log *logger.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// New 创建 Aggregator。engine 和 rasterizer 由调用方构造并注入。
func New(engine detection.Engine, rasterizer Rasterizer, opts ...Option) *Aggregator {
	a := &Aggregator{
		engine:     engine,
		rasterizer: rasterizer,
		assembler:  layout.NewAssembler(),
		classifier: layout.NewClassifier(),
		maxPages:   DefaultMaxPages,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MaxPages 返回页数上限。
func (a *Aggregator) MaxPages() int {
	return a.maxPages
}

// Process 按页序处理文档。
// 任意一页检测失败都会中止整个文档并返回 models.ErrDetectionFailure，已处理的页面被丢弃。
func (a *Aggregator) Process(ctx context.Context, src Source, mode Mode) (*models.Document, error) {
	images, cleanup, err := a.pages(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	doc := &models.Document{Pages: make([]models.Page, 0, len(images))}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := a.processPage(ctx, img, mode)
		if err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, page)
	}
	a.log.Debug(fmt.Sprintf("文档 %s 处理完成: mode=%s pages=%d", src.Name, mode, len(doc.Pages)))
	return doc, nil
}

func (a *Aggregator) processPage(ctx context.Context, img models.PageImage, mode Mode) (models.Page, error) {
	w, h, err := imageSize(img.Data)
	if err != nil {
		return models.Page{}, fmt.Errorf("%w: page %d: %w", models.ErrUnsupportedType, img.Page, err)
	}

	switch mode {
	case ModeOCR:
		lines, err := a.engine.Lines(ctx, img)
		if err != nil {
			return models.Page{}, fmt.Errorf("%w: page %d: %w", models.ErrDetectionFailure, img.Page, err)
		}
		return a.assembler.AssembleLines(img.Page, lines, w, h), nil
	case ModeLayout, ModeEnhanced:
		dets, err := a.engine.Layout(ctx, img)
		if err != nil {
			return models.Page{}, fmt.Errorf("%w: page %d: %w", models.ErrDetectionFailure, img.Page, err)
		}
		page := a.assembler.Assemble(img.Page, dets, w, h)
		// 没有检测结果时只有占位区域，保持 unknown。
		if mode == ModeEnhanced && len(dets) > 0 {
			page = a.classifier.ClassifyPage(page)
		}
		return page, nil
	default:
		return models.Page{}, fmt.Errorf("unknown mode %q", mode)
	}
}

// pages 把来源转为页面图像。PDF 先写入临时目录再栅格化，返回的 cleanup 负责删除临时文件。
func (a *Aggregator) pages(ctx context.Context, src Source) ([]models.PageImage, func(), error) {
	noop := func() {}
	data := src.Data
	if data == nil {
		if src.Path == "" {
			return nil, noop, fmt.Errorf("%w: empty source", models.ErrUnsupportedType)
		}
		var err error
		data, err = os.ReadFile(src.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, noop, fmt.Errorf("%w: %s", models.ErrNotFound, src.Path)
			}
			return nil, noop, err
		}
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return a.pdfPages(ctx, src, data)
	case strings.HasPrefix(mt.String(), "image/"):
		return []models.PageImage{{Page: 1, Name: src.Name, Data: data}}, noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", models.ErrUnsupportedType, mt.String())
	}
}

func (a *Aggregator) pdfPages(ctx context.Context, src Source, data []byte) ([]models.PageImage, func(), error) {
	if a.rasterizer == nil {
		return nil, func() {}, fmt.Errorf("%w: pdf input requires a rasterizer", models.ErrUnsupportedType)
	}
	dir, err := os.MkdirTemp("", "leviosa-pages-*")
	if err != nil {
		return nil, func() {}, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	pdfPath := src.Path
	if pdfPath == "" {
		pdfPath = filepath.Join(dir, "source.pdf")
		if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
			cleanup()
			return nil, func() {}, err
		}
	}

	paths, err := a.rasterizer.Rasterize(ctx, pdfPath, dir, a.maxPages)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("rasterize %s: %w", src.Name, err)
	}
	if len(paths) > a.maxPages {
		a.log.Warn(fmt.Sprintf("渲染得到 %d 页，超过上限 %d，丢弃 %d 页", len(paths), a.maxPages, len(paths)-a.maxPages))
		paths = paths[:a.maxPages]
	}

	images := make([]models.PageImage, 0, len(paths))
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		images = append(images, models.PageImage{Page: i + 1, Name: filepath.Base(p), Data: b})
	}
	return images, cleanup, nil
}
