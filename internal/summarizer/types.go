package summarizer

// Result 一次报告生成的结果
type Result struct {
	ReportID   string `json:"report_id"`
	Title      string `json:"title"`
	OutputPath string `json:"output_path"`
	Paragraph  string `json:"paragraph"`
	LineCount  int    `json:"line_count"`
	Abstract   string `json:"abstract,omitempty"`
	Skipped    bool   `json:"skipped"` // 内容未变化且已生成过报告
}
