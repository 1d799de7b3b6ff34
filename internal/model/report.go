package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("记录不存在")

// Status 报告生成状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Mode 输入文件的类型
type Mode string

const (
	ModePoints Mode = "points" // 原始观点文件，需要分类
	ModeBundle Mode = "bundle" // 已分类好的 JSON 观点集合
)

// Request 生成报告时的请求参数，恢复未完成的报告时按原样重放
type Request struct {
	Mode      Mode
	Title     string // 为空时从文件名推导
	OutputDir string // 为空时使用默认输出目录
}

// Report 一次报告生成记录
type Report struct {
	ID             string
	SourcePath     string
	SourceChecksum string
	Request        Request
	Title          string
	OutputPath     string
	Paragraph      string
	LineCount      int
	Status         Status
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY,
	source_path     TEXT NOT NULL,
	source_checksum TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT 'points',
	request_title   TEXT NOT NULL DEFAULT '',
	output_dir      TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	output_path     TEXT NOT NULL DEFAULT '',
	paragraph       TEXT NOT NULL DEFAULT '',
	line_count      INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'pending',
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_source ON reports(source_path, source_checksum);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
`

// addedColumns 旧版本数据库缺少的列
var addedColumns = []struct{ name, ddl string }{
	{"mode", `ALTER TABLE reports ADD COLUMN mode TEXT NOT NULL DEFAULT 'points'`},
	{"request_title", `ALTER TABLE reports ADD COLUMN request_title TEXT NOT NULL DEFAULT ''`},
	{"output_dir", `ALTER TABLE reports ADD COLUMN output_dir TEXT NOT NULL DEFAULT ''`},
	{"paragraph", `ALTER TABLE reports ADD COLUMN paragraph TEXT NOT NULL DEFAULT ''`},
}

const reportColumns = `id, source_path, source_checksum, mode, request_title, output_dir, title, output_path, paragraph, line_count, status, error_message, created_at, updated_at`

// Open 打开 sqlite 数据库并建表
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1", path))
	if err != nil {
		return nil, err
	}
	// sqlite 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate 创建表和索引，并为旧版本的表补齐新增的列
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("创建数据库Schema失败: %w", err)
	}

	existing, err := columns(ctx, db)
	if err != nil {
		return fmt.Errorf("读取表结构失败: %w", err)
	}
	for _, c := range addedColumns {
		if existing[c.name] {
			continue
		}
		if _, err := db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("添加列 %s 失败: %w", c.name, err)
		}
	}
	return nil
}

func columns(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('reports')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

func (r Request) modeOrDefault() Mode {
	if r.Mode == "" {
		return ModePoints
	}
	return r.Mode
}

type ReportModel struct {
	db *sql.DB
}

func NewReportModel(db *sql.DB) *ReportModel {
	return &ReportModel{db: db}
}

func scanReport(row interface{ Scan(...any) error }) (*Report, error) {
	var r Report
	var status, mode string
	err := row.Scan(&r.ID, &r.SourcePath, &r.SourceChecksum, &mode, &r.Request.Title, &r.Request.OutputDir,
		&r.Title, &r.OutputPath, &r.Paragraph, &r.LineCount, &status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.Request.Mode = Mode(mode)
	return &r, nil
}

// Get 按 ID 查询
func (m *ReportModel) Get(ctx context.Context, id string) (*Report, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	return scanReport(row)
}

// GetBySource 按输入文件路径和内容校验和查询
func (m *ReportModel) GetBySource(ctx context.Context, sourcePath, checksum string) (*Report, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE source_path = ? AND source_checksum = ?`,
		sourcePath, checksum)
	return scanReport(row)
}

// GetOrCreate 获取或创建记录（同一文件同一内容只会有一条）
// 新建的记录保存 req，已有记录的请求参数由 MarkProcessing 更新
func (m *ReportModel) GetOrCreate(ctx context.Context, sourcePath, checksum string, req Request) (*Report, error) {
	existing, err := m.GetBySource(ctx, sourcePath, checksum)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO reports (id, source_path, source_checksum, mode, request_title, output_dir, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_path, source_checksum) DO NOTHING`,
		uuid.NewString(), sourcePath, checksum, string(req.modeOrDefault()), req.Title, req.OutputDir,
		string(StatusPending), now, now)
	if err != nil {
		return nil, fmt.Errorf("创建报告记录失败: %w", err)
	}
	return m.GetBySource(ctx, sourcePath, checksum)
}

func (m *ReportModel) update(ctx context.Context, id string, query string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	res, err := m.db.ExecContext(ctx, `UPDATE reports SET `+query+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing 标记为生成中，记录本次请求参数并清除上一次的错误信息
func (m *ReportModel) MarkProcessing(ctx context.Context, id string, req Request) error {
	return m.update(ctx, id, `status = ?, mode = ?, request_title = ?, output_dir = ?, error_message = ''`,
		string(StatusProcessing), string(req.modeOrDefault()), req.Title, req.OutputDir)
}

// MarkCompleted 标记生成完成，保存段落以便跳过重复生成时直接返回
func (m *ReportModel) MarkCompleted(ctx context.Context, id, title, outputPath, paragraph string, lineCount int) error {
	return m.update(ctx, id, `status = ?, title = ?, output_path = ?, paragraph = ?, line_count = ?, error_message = ''`,
		string(StatusCompleted), title, outputPath, paragraph, lineCount)
}

// MarkFailed 标记生成失败
func (m *ReportModel) MarkFailed(ctx context.Context, id, errorMsg string) error {
	return m.update(ctx, id, `status = ?, error_message = ?`, string(StatusFailed), errorMsg)
}

func (m *ReportModel) query(ctx context.Context, query string, args ...any) ([]*Report, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

// GetUnfinished 查询所有待处理或处理中的记录
func (m *ReportModel) GetUnfinished(ctx context.Context) ([]*Report, error) {
	return m.query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status IN (?, ?) ORDER BY created_at`,
		string(StatusPending), string(StatusProcessing))
}

// ListRecent 按更新时间倒序列出最近的记录
func (m *ReportModel) ListRecent(ctx context.Context, limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.query(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY updated_at DESC, created_at DESC LIMIT ?`,
		limit)
}
