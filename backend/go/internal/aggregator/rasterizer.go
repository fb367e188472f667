package aggregator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"Leviosa/backend/go/pkg/logger"
)

// Rasterizer 把 PDF 渲染为按页序排列的图像文件。
type Rasterizer interface {
	// Rasterize 把 pdfPath 的前 maxPages 页渲染到 outDir，返回按页序排列的图像路径。
	Rasterize(ctx context.Context, pdfPath, outDir string, maxPages int) ([]string, error)
}

// PdftoppmRasterizer 调用 poppler 的 pdftoppm 渲染页面。
type PdftoppmRasterizer struct {
	DPI    int
	Binary string
	log    *logger.Logger
}

// NewPdftoppmRasterizer 创建渲染器，dpi <= 0 时使用 144。
func NewPdftoppmRasterizer(dpi int, log *logger.Logger) *PdftoppmRasterizer {
	if dpi <= 0 {
		dpi = 144
	}
	if log == nil {
		log = logger.Discard()
	}
	return &PdftoppmRasterizer{DPI: dpi, Binary: "pdftoppm", log: log}
}

// Rasterize 实现 Rasterizer。先统计总页数，只渲染前 maxPages 页，丢弃的页数记录到日志。
func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, maxPages int) ([]string, error) {
	last := maxPages
	total, err := CountPages(pdfPath)
	switch {
	case err != nil:
		r.log.Warn(fmt.Sprintf("无法统计 PDF 页数，按上限 %d 页渲染: %v", maxPages, err))
	case total == 0:
		return nil, errors.New("pdf has no pages")
	case total > maxPages:
		r.log.Warn(fmt.Sprintf("PDF 共 %d 页，只处理前 %d 页，丢弃 %d 页", total, maxPages, total-maxPages))
	default:
		last = total
	}

	prefix := filepath.Join(outDir, "page")
	args := []string{
		"-png",
		"-r", strconv.Itoa(r.DPI),
		"-f", "1",
		"-l", strconv.Itoa(last),
		pdfPath,
		prefix,
	}
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.New("no rendered pages found")
	}
	sortByPageIndex(matches)
	return matches, nil
}

// CountPages 返回 PDF 的页数。
func CountPages(pdfPath string) (int, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// sortByPageIndex 按 pdftoppm 输出文件名中的页码排序（page-1.png, page-01.png ...）。
func sortByPageIndex(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return pageIndexFromName(paths[i]) < pageIndexFromName(paths[j])
	})
}

func pageIndexFromName(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
