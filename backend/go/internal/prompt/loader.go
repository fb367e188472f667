// Package prompt 加载 Markdown 合成使用的系统提示词。
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Name 标识一个提示词文件。
type Name string

const (
	Conversion Name = "markdown_conversion.txt"
	Refinement Name = "markdown_refinement.txt"
)

// DefaultDir 是未配置时的提示词目录。
const DefaultDir = "prompts"

// 文件不存在时使用的内置提示词。
const (
	DefaultConversion = "You are an expert at converting raw OCR text into well-structured Markdown. " +
		"Preserve the document structure, identify headers, lists, tables, and other elements. " +
		"Use appropriate Markdown formatting for each element type."
	DefaultRefinement = "You are an expert Markdown formatter.\n" +
		"Refine the given markdown to be clean, consistent, and free of OCR errors.\n" +
		"Fix formatting, clean up tables, and ensure proper document structure."
)

var defaults = map[Name]string{
	Conversion: DefaultConversion,
	Refinement: DefaultRefinement,
}

// Loader 从目录读取提示词，首次读取后缓存。
type Loader struct {
	dir   string
	mu    sync.Mutex
	cache map[Name]string
}

// NewLoader 创建一个从 dir 读取提示词的 Loader。
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[Name]string)}
}

// Get 返回提示词内容。文件不存在时返回内置默认值，其它读取错误返回 error。
func (l *Loader) Get(name Name) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if text, ok := l.cache[name]; ok {
		return text, nil
	}

	text, err := l.read(name)
	if err != nil {
		return "", err
	}
	l.cache[name] = text
	return text, nil
}

// MustGet 与 Get 相同，但出错时退回内置默认值。
func (l *Loader) MustGet(name Name) string {
	text, err := l.Get(name)
	if err != nil {
		return defaults[name]
	}
	return text
}

func (l *Loader) read(name Name) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, string(name)))
	if err == nil {
		return string(data), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		if text, ok := defaults[name]; ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("读取提示词 %s 失败: %w", name, err)
}
