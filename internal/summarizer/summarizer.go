package summarizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fachebot/point-digest/internal/classifier"
	"github.com/fachebot/point-digest/internal/llm"
	"github.com/fachebot/point-digest/internal/logger"
	"github.com/fachebot/point-digest/internal/model"
	"github.com/fachebot/point-digest/internal/paragraph"
	"github.com/fachebot/point-digest/internal/points"
	"github.com/fachebot/point-digest/internal/report"
)

// abstractWriter 调用 LLM 生成导语（便于测试注入 mock）
type abstractWriter interface {
	WriteAbstract(ctx context.Context, title string, lines []string) (string, error)
}

// reportArchive 报告生成记录（便于测试注入 mock）
type reportArchive interface {
	GetOrCreate(ctx context.Context, sourcePath, checksum string, req model.Request) (*model.Report, error)
	MarkProcessing(ctx context.Context, id string, req model.Request) error
	MarkCompleted(ctx context.Context, id, title, outputPath, paragraph string, lineCount int) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
}

// Options 单次生成的可选参数
type Options struct {
	Bundle       bool   // 输入为已分类好的 JSON 观点集合
	Title        string // 为空时从文件名推导
	OutputDir    string // 为空时使用默认输出目录
	SkipAbstract bool
	Force        bool // 内容未变化时也重新生成
}

// loader 将文件内容转换为观点集合
type loader func(ctx context.Context, data []byte) (*points.Bundle, error)

type Summarizer struct {
	classifier classifier.Classifier
	cleaner    paragraph.Cleaner
	abstracts  abstractWriter
	reports    reportArchive
	renderer   *report.Renderer
	outputDir  string
}

// NewSummarizer 创建总结器，llmClient 为 nil 时不生成导语
func NewSummarizer(
	cls classifier.Classifier,
	cleaner paragraph.Cleaner,
	llmClient *llm.Client,
	reportModel *model.ReportModel,
	renderer *report.Renderer,
	outputDir string,
) *Summarizer {
	s := &Summarizer{
		classifier: cls,
		cleaner:    cleaner,
		reports:    reportModel,
		renderer:   renderer,
		outputDir:  outputDir,
	}
	if llmClient != nil {
		s.abstracts = llmClient
	}
	return s
}

// Digest 按 opts.Bundle 选择输入类型并生成 HTML 报告
func (s *Summarizer) Digest(ctx context.Context, path string, opts Options) (*Result, error) {
	if opts.Bundle {
		return s.digest(ctx, path, opts, s.loadBundle)
	}
	return s.digest(ctx, path, opts, s.loadPoints)
}

// DigestFile 读取观点文件，分类后生成 HTML 报告
func (s *Summarizer) DigestFile(ctx context.Context, path string, opts Options) (*Result, error) {
	opts.Bundle = false
	return s.Digest(ctx, path, opts)
}

// DigestBundleFile 读取上游已分类好的 JSON 观点集合并生成 HTML 报告
func (s *Summarizer) DigestBundleFile(ctx context.Context, path string, opts Options) (*Result, error) {
	opts.Bundle = true
	return s.Digest(ctx, path, opts)
}

func (s *Summarizer) loadPoints(ctx context.Context, data []byte) (*points.Bundle, error) {
	doc, err := points.Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Infof("[Summarizer] 读取到 %d 条观点，%d 个话题", len(doc.Points), len(doc.Topics))
	bundle, err := s.classifier.Classify(ctx, doc.Topics, doc.Points)
	if err != nil {
		return nil, fmt.Errorf("观点分类失败: %w", err)
	}
	return bundle, nil
}

func (s *Summarizer) loadBundle(_ context.Context, data []byte) (*points.Bundle, error) {
	return points.ParseBundle(data)
}

// Request 转换为归档记录中保存的请求参数
func (opts Options) Request() model.Request {
	mode := model.ModePoints
	if opts.Bundle {
		mode = model.ModeBundle
	}
	return model.Request{Mode: mode, Title: opts.Title, OutputDir: opts.OutputDir}
}

func (s *Summarizer) outputDirFor(opts Options) string {
	if opts.OutputDir != "" {
		return opts.OutputDir
	}
	return s.outputDir
}

func (s *Summarizer) digest(ctx context.Context, path string, opts Options, load loader) (*Result, error) {
	title := opts.Title
	if title == "" {
		var err error
		title, err = report.DeriveTitle(path)
		if err != nil {
			return nil, err
		}
	}

	sourcePath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("读取输入文件失败: %w", err)
	}
	checksum := points.Checksum(data)

	req := opts.Request()
	record, err := s.reports.GetOrCreate(ctx, sourcePath, checksum, req)
	if err != nil {
		return nil, fmt.Errorf("获取报告记录失败: %w", err)
	}

	// 只有同一输入、同一类型、同一标题和输出位置的报告已存在时才跳过
	outputPath := filepath.Join(s.outputDirFor(opts), report.FileName(title))
	if !opts.Force && record.Status == model.StatusCompleted &&
		record.Request.Mode == req.Mode &&
		record.Title == title &&
		record.OutputPath == outputPath &&
		fileExists(outputPath) {
		logger.Infof("[Summarizer] %s 内容未变化，已生成过报告: %s", path, record.OutputPath)
		return &Result{
			ReportID:   record.ID,
			Title:      record.Title,
			OutputPath: record.OutputPath,
			Paragraph:  record.Paragraph,
			LineCount:  record.LineCount,
			Skipped:    true,
		}, nil
	}

	if err := s.reports.MarkProcessing(ctx, record.ID, req); err != nil {
		return nil, fmt.Errorf("更新报告状态失败: %w", err)
	}

	result, err := s.build(ctx, title, data, opts, load)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			logger.Warnf("[Summarizer] 标记报告失败状态出错 (id=%s): %v", record.ID, markErr)
		}
		return nil, err
	}
	result.ReportID = record.ID

	if err := s.reports.MarkCompleted(ctx, record.ID, result.Title, result.OutputPath, result.Paragraph, result.LineCount); err != nil {
		return nil, fmt.Errorf("更新报告状态失败: %w", err)
	}
	logger.Infof("[Summarizer] 报告《%s》已生成: %s (%d 行)", result.Title, result.OutputPath, result.LineCount)
	return result, nil
}

// build 拼接段落、生成导语并写出报告
func (s *Summarizer) build(ctx context.Context, title string, data []byte, opts Options, load loader) (*Result, error) {
	bundle, err := load(ctx, data)
	if err != nil {
		return nil, err
	}

	lines, err := paragraph.Lines(bundle, s.cleaner)
	if err != nil {
		return nil, fmt.Errorf("拼接段落失败: %w", err)
	}
	view := report.NewView(title, bundle, lines)

	if s.abstracts != nil && !opts.SkipAbstract && len(lines) > 0 {
		texts := make([]string, len(lines))
		for i, l := range lines {
			texts[i] = l.Text
		}
		abstract, err := s.abstracts.WriteAbstract(ctx, title, texts)
		if err != nil {
			// 导语不是必需内容，失败时继续生成报告
			logger.Warnf("[Summarizer] 生成导语失败，报告将不包含导语: %v", err)
		} else {
			view.Abstract = abstract
		}
	}

	outputPath, err := s.renderer.WriteFile(s.outputDirFor(opts), view)
	if err != nil {
		return nil, fmt.Errorf("写入报告失败: %w", err)
	}

	return &Result{
		Title:      title,
		OutputPath: outputPath,
		Paragraph:  view.Paragraph,
		LineCount:  len(lines),
		Abstract:   view.Abstract,
	}, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
