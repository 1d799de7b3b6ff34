package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fachebot/point-digest/internal/config"
	"github.com/fachebot/point-digest/internal/model"
	"github.com/fachebot/point-digest/internal/points"
	"github.com/fachebot/point-digest/internal/summarizer"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDigester 记录调用并按文件返回预设的失败次数
type mockDigester struct {
	mu       sync.Mutex
	calls    []string
	opts     []summarizer.Options
	failures map[string]int
}

func (m *mockDigester) Digest(ctx context.Context, path string, opts summarizer.Options) (*summarizer.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, path)
	m.opts = append(m.opts, opts)
	if m.failures[path] > 0 {
		m.failures[path]--
		return nil, errors.New("digest error")
	}
	return &summarizer.Result{OutputPath: path + ".html"}, nil
}

type mockUnfinished struct {
	reports []*model.Report
	err     error
	failed  map[string]string
}

func (m *mockUnfinished) GetUnfinished(ctx context.Context) ([]*model.Report, error) {
	return m.reports, m.err
}

func (m *mockUnfinished) MarkFailed(ctx context.Context, id, errorMsg string) error {
	if m.failed == nil {
		m.failed = make(map[string]string)
	}
	m.failed[id] = errorMsg
	return nil
}

func newTestScheduler(t *testing.T, d *mockDigester, u *mockUnfinished, cfg *config.Watch) *Scheduler {
	s := &Scheduler{
		cron:       cron.New(cron.WithLocation(locUTC)),
		summarizer: d,
		reports:    u,
		config:     cfg,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	t.Cleanup(s.cancel)
	return s
}

const touchContent = "topics\n\n"

func touch(t *testing.T, dir, name string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(touchContent), 0644))
	return path
}

func TestScan_MatchesPatternInOrder(t *testing.T) {
	dir := t.TempDir()
	b := touch(t, dir, "b_points.txt")
	a := touch(t, dir, "a_points.txt")
	touch(t, dir, "notes.md")

	d := &mockDigester{}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, Pattern: "*_points.txt", RetryTimes: 1, RetryInterval: 1})

	success, failed, err := s.scan(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, success)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{a, b}, d.calls)
}

func TestScan_DefaultPattern(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_points.txt")
	touch(t, dir, "a_points.json")

	d := &mockDigester{}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	success, _, err := s.scan(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, success)
	assert.Equal(t, []string{a}, d.calls)
}

func TestDigestWithRetry_SucceedsAfterFailure(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_points.txt")

	d := &mockDigester{failures: map[string]int{a: 1}}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, RetryTimes: 2, RetryInterval: 1})

	require.NoError(t, s.digestWithRetry(s.ctx, a, summarizer.Options{}))
	assert.Len(t, d.calls, 2)
}

func TestDigestWithRetry_GivesUp(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_points.txt")

	d := &mockDigester{failures: map[string]int{a: 5}}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	err := s.digestWithRetry(s.ctx, a, summarizer.Options{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "已重试 1 次")
	assert.Len(t, d.calls, 1)
}

func TestScan_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_points.txt")
	touch(t, dir, "b_points.txt")

	d := &mockDigester{failures: map[string]int{a: 1}}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	success, failed, err := s.scan(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, failed)
}

func TestScan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a_points.txt")

	d := &mockDigester{}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})
	s.cancel()

	_, _, err := s.scan(s.ctx)
	assert.Error(t, err)
	assert.Empty(t, d.calls)
}

func TestRunScan_SkipsWhileScanning(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a_points.txt")

	d := &mockDigester{}
	s := newTestScheduler(t, d, &mockUnfinished{}, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	s.scanning.Lock()
	s.runScan()
	s.scanning.Unlock()
	assert.Empty(t, d.calls)

	s.runScan()
	assert.Len(t, d.calls, 1)
}

func TestRecoverUnfinished(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_points.txt")
	gone := filepath.Join(dir, "gone_points.txt")
	checksum := points.Checksum([]byte(touchContent))

	d := &mockDigester{}
	u := &mockUnfinished{reports: []*model.Report{
		{ID: "1", SourcePath: a, SourceChecksum: checksum, Status: model.StatusProcessing,
			Request: model.Request{Mode: model.ModePoints}},
		{ID: "2", SourcePath: gone, SourceChecksum: checksum, Status: model.StatusPending},
	}}
	s := newTestScheduler(t, d, u, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	s.recoverUnfinished()
	assert.Equal(t, []string{a}, d.calls)
	assert.Equal(t, []summarizer.Options{{}}, d.opts)
	assert.Contains(t, u.failed, "2")
	assert.NotContains(t, u.failed, "1")
}

func TestRecoverUnfinished_ReplaysBundleRequest(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle.json")
	content := []byte(`{"common_points":[{"text":"Everyone pays."}]}`)
	require.NoError(t, os.WriteFile(bundle, content, 0644))
	outDir := filepath.Join(dir, "out")

	d := &mockDigester{}
	u := &mockUnfinished{reports: []*model.Report{{
		ID:             "1",
		SourcePath:     bundle,
		SourceChecksum: points.Checksum(content),
		Status:         model.StatusProcessing,
		Request:        model.Request{Mode: model.ModeBundle, Title: "Tax Reform", OutputDir: outDir},
	}}}
	s := newTestScheduler(t, d, u, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	s.recoverUnfinished()
	require.Equal(t, []string{bundle}, d.calls)
	assert.Equal(t, summarizer.Options{Bundle: true, Title: "Tax Reform", OutputDir: outDir}, d.opts[0])
	assert.Empty(t, u.failed)
}

func TestRecoverUnfinished_ChangedSourceIsClosed(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_points.txt")

	d := &mockDigester{}
	u := &mockUnfinished{reports: []*model.Report{
		{ID: "1", SourcePath: a, SourceChecksum: "stale", Status: model.StatusProcessing},
	}}
	s := newTestScheduler(t, d, u, &config.Watch{InputDir: dir, RetryTimes: 1, RetryInterval: 1})

	s.recoverUnfinished()
	assert.Empty(t, d.calls)
	assert.Equal(t, "源文件内容已变化", u.failed["1"])
}

func TestRecoverUnfinished_QueryError(t *testing.T) {
	d := &mockDigester{}
	s := newTestScheduler(t, d, &mockUnfinished{err: errors.New("db error")}, &config.Watch{InputDir: t.TempDir()})

	s.recoverUnfinished()
	assert.Empty(t, d.calls)
}

func TestStart_Validation(t *testing.T) {
	s := newTestScheduler(t, &mockDigester{}, &mockUnfinished{}, &config.Watch{InputDir: t.TempDir()})
	assert.Error(t, s.Start())

	s = newTestScheduler(t, &mockDigester{}, &mockUnfinished{}, &config.Watch{Cron: "not a cron", InputDir: t.TempDir()})
	err := s.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "注册目录扫描任务失败")
}
