package report

import (
	"bufio"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fachebot/point-digest/internal/paragraph"
	"github.com/fachebot/point-digest/internal/points"
)

//go:embed templates/summary.html.tmpl
var templates embed.FS

const defaultTemplate = "templates/summary.html.tmpl"

// View 模板渲染使用的数据
type View struct {
	Title       string
	Abstract    string
	Paragraph   string
	Lines       []paragraph.Line
	Bundle      *points.Bundle
	Topics      []string
	GeneratedAt time.Time
}

// NewView 组装渲染数据
func NewView(title string, bundle *points.Bundle, lines []paragraph.Line) *View {
	if bundle == nil {
		bundle = &points.Bundle{}
	}
	return &View{
		Title:       title,
		Paragraph:   paragraph.Join(lines),
		Lines:       lines,
		Bundle:      bundle,
		Topics:      bundle.Topics(),
		GeneratedAt: time.Now().UTC(),
	}
}

type Renderer struct {
	tmpl *template.Template
}

// NewRenderer 创建渲染器，templatePath 为空时使用内置模板
func NewRenderer(templatePath string) (*Renderer, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatePath == "" {
		tmpl, err = template.ParseFS(templates, defaultTemplate)
	} else {
		tmpl, err = template.ParseFiles(templatePath)
	}
	if err != nil {
		return nil, fmt.Errorf("解析报告模板失败: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render 将报告渲染为 HTML
func (r *Renderer) Render(w io.Writer, view *View) error {
	if err := r.tmpl.Execute(w, view); err != nil {
		return fmt.Errorf("渲染报告失败: %w", err)
	}
	return nil
}

// WriteFile 渲染报告并写入 dir 目录，返回文件路径
// 先写临时文件再重命名，避免留下半截文件
func (r *Renderer) WriteFile(dir string, view *View) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	dest := filepath.Join(dir, FileName(view.Title))

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := r.Render(bw, view); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	_ = os.Chmod(tmpPath, 0644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return dest, nil
}
