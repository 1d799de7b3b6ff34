package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fachebot/point-digest/internal/config"
	"github.com/fachebot/point-digest/internal/logger"
	"github.com/fachebot/point-digest/internal/model"
	"github.com/fachebot/point-digest/internal/points"
	"github.com/fachebot/point-digest/internal/summarizer"
	"github.com/robfig/cron/v3"
)

// digester 生成单个文件的报告（便于测试注入 mock）
type digester interface {
	Digest(ctx context.Context, path string, opts summarizer.Options) (*summarizer.Result, error)
}

// unfinishedReports 查询和关闭未完成的报告记录（便于测试注入 mock）
type unfinishedReports interface {
	GetUnfinished(ctx context.Context) ([]*model.Report, error)
	MarkFailed(ctx context.Context, id, errorMsg string) error
}

type Scheduler struct {
	cron       *cron.Cron
	summarizer digester
	reports    unfinishedReports
	config     *config.Watch
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	scanning   sync.Mutex
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(summarizer *summarizer.Summarizer, reportModel *model.ReportModel, cfg *config.Watch) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(locUTC)),
		summarizer: summarizer,
		reports:    reportModel,
		config:     cfg,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	if s.config.Cron == "" {
		return fmt.Errorf("Watch.Cron 不能为空")
	}
	if s.config.InputDir == "" {
		return fmt.Errorf("Watch.InputDir 不能为空")
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册目录扫描任务
	_, err := s.cron.AddFunc(s.config.Cron, s.runScan)
	if err != nil {
		return fmt.Errorf("注册目录扫描任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，扫描任务: %s，目录: %s", s.config.Cron, s.config.InputDir)

	// 启动时恢复未完成的报告并立即扫描一次
	go func() {
		s.recoverUnfinished()
		s.runScan()
	}()

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// recoverUnfinished 重新生成上次退出时未完成的报告
func (s *Scheduler) recoverUnfinished() {
	ctx := s.context()

	reports, err := s.reports.GetUnfinished(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] 查询未完成报告失败: %v", err)
		return
	}
	if len(reports) == 0 {
		return
	}

	logger.Infof("[Scheduler] 找到 %d 个未完成的报告，开始恢复", len(reports))
	for _, r := range reports {
		select {
		case <-ctx.Done():
			logger.Infof("[Scheduler] 恢复已取消")
			return
		default:
		}
		opts, reason := s.recoveryOptions(r)
		if reason != "" {
			logger.Warnf("[Scheduler] 放弃恢复报告 (%s): %s", r.SourcePath, reason)
			if err := s.reports.MarkFailed(ctx, r.ID, reason); err != nil {
				logger.Errorf("[Scheduler] 标记报告失败状态出错 (id=%s): %v", r.ID, err)
			}
			continue
		}
		if err := s.digestWithRetry(ctx, r.SourcePath, opts); err != nil {
			logger.Errorf("[Scheduler] 恢复报告失败 (%s): %v", r.SourcePath, err)
		}
	}
}

// recoveryOptions 按记录中保存的请求参数重放，源文件已删除或内容已变化时返回原因
func (s *Scheduler) recoveryOptions(r *model.Report) (summarizer.Options, string) {
	data, err := os.ReadFile(r.SourcePath)
	if err != nil {
		return summarizer.Options{}, fmt.Sprintf("源文件不可读: %v", err)
	}
	if points.Checksum(data) != r.SourceChecksum {
		return summarizer.Options{}, "源文件内容已变化"
	}
	return summarizer.Options{
		Bundle:    r.Request.Mode == model.ModeBundle,
		Title:     r.Request.Title,
		OutputDir: r.Request.OutputDir,
	}, ""
}

// runScan 扫描输入目录（cron 触发）
func (s *Scheduler) runScan() {
	// 上一次扫描尚未结束时跳过本次
	if !s.scanning.TryLock() {
		logger.Debugf("[Scheduler] 上一次扫描仍在进行，跳过")
		return
	}
	defer s.scanning.Unlock()

	ctx := s.context()
	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	success, failed, err := s.scan(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] 扫描目录失败: %v", err)
		return
	}
	if success+failed > 0 {
		logger.Infof("[Scheduler] 扫描完成: 成功 %d 个，失败 %d 个", success, failed)
	}
}

// scan 为目录中每个匹配文件生成报告，内容未变化的文件由 summarizer 跳过
func (s *Scheduler) scan(ctx context.Context) (success, failed int, err error) {
	pattern := s.config.Pattern
	if pattern == "" {
		pattern = "*_points.txt"
	}
	files, err := filepath.Glob(filepath.Join(s.config.InputDir, pattern))
	if err != nil {
		return 0, 0, err
	}
	sort.Strings(files)

	for _, file := range files {
		select {
		case <-ctx.Done():
			return success, failed, fmt.Errorf("任务已取消")
		default:
		}
		if err := s.digestWithRetry(ctx, file, summarizer.Options{}); err != nil {
			logger.Errorf("[Scheduler] 生成报告失败 (%s): %v", file, err)
			failed++
			continue
		}
		success++
	}
	return success, failed, nil
}

// digestWithRetry 生成单个文件的报告，失败时按配置重试
func (s *Scheduler) digestWithRetry(ctx context.Context, file string, opts summarizer.Options) error {
	retryTimes := s.config.RetryTimes
	if retryTimes <= 0 {
		retryTimes = 3
	}
	retryInterval := time.Duration(s.config.RetryInterval) * time.Second
	if retryInterval <= 0 {
		retryInterval = 60 * time.Second
	}

	var err error
	for attempt := 1; attempt <= retryTimes; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("任务已取消")
		default:
		}

		var result *summarizer.Result
		result, err = s.summarizer.Digest(ctx, file, opts)
		if err == nil {
			if !result.Skipped {
				logger.Infof("[Scheduler] %s: 报告生成成功 -> %s", file, result.OutputPath)
			}
			return nil
		}

		logger.Warnf("[Scheduler] %s: 报告生成失败 (第 %d/%d 次): %v", file, attempt, retryTimes, err)
		if attempt < retryTimes {
			select {
			case <-ctx.Done():
				return fmt.Errorf("任务已取消")
			case <-time.After(retryInterval):
			}
		}
	}
	return fmt.Errorf("报告生成失败，已重试 %d 次: %w", retryTimes, err)
}
