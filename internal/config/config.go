package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type LLM struct {
	Enable    bool   `yaml:"Enable"`    // 是否为报告生成导语
	BaseURL   string `yaml:"BaseURL"`   // 兼容 OpenAI API 的端点
	APIKey    string `yaml:"APIKey"`
	Model     string `yaml:"Model"`     // 如 gpt-4o, deepseek-chat, qwen-plus
	MaxTokens int    `yaml:"MaxTokens"` // 模型上下文窗口大小
}

type Classifier struct {
	LongPointLength  int     `yaml:"LongPointLength"`  // 超过该字符数视为长观点
	MinTopicPoints   int     `yaml:"MinTopicPoints"`   // 话题至少被多少条观点提及才算热门话题
	CommonSimilarity float64 `yaml:"CommonSimilarity"` // 编辑距离相似度阈值 (0,1]
	RelatedOverlap   float64 `yaml:"RelatedOverlap"`   // 关键词重合度阈值 (0,1]
}

type Report struct {
	OutputDir string `yaml:"OutputDir"` // HTML 报告输出目录
	Template  string `yaml:"Template"`  // 自定义模板路径，为空时使用内置模板
}

type Watch struct {
	Cron          string `yaml:"Cron"`          // cron 表达式，如 "*/10 * * * *"
	InputDir      string `yaml:"InputDir"`      // 监听的观点文件目录
	Pattern       string `yaml:"Pattern"`       // 文件匹配模式，如 "*_points.txt"
	RetryTimes    int    `yaml:"RetryTimes"`    // 生成失败重试次数，默认 3
	RetryInterval int    `yaml:"RetryInterval"` // 重试间隔（秒），默认 60
}

type Database struct {
	Path string `yaml:"Path"` // sqlite 数据库文件路径
}

type Config struct {
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Classifier Classifier `yaml:"Classifier"`
	Report     Report     `yaml:"Report"`
	Watch      Watch      `yaml:"Watch"`
	Database   Database   `yaml:"Database"`
}

// Default 返回默认配置，未提供配置文件时使用
func Default() *Config {
	return &Config{
		LLM: LLM{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 16000,
		},
		Classifier: Classifier{
			LongPointLength:  200,
			MinTopicPoints:   3,
			CommonSimilarity: 0.85,
			RelatedOverlap:   0.5,
		},
		Report: Report{
			OutputDir: "reports",
		},
		Watch: Watch{
			Cron:          "*/10 * * * *",
			InputDir:      "inbox",
			Pattern:       "*_points.txt",
			RetryTimes:    3,
			RetryInterval: 60,
		},
		Database: Database{
			Path: filepath.Join("data", "sqlite.db"),
		},
	}
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	c := Default()
	err = yaml.Unmarshal([]byte(data), c)
	if err != nil {
		return nil, err
	}

	c.ApplyEnv()

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// ApplyEnv 使用环境变量覆盖 LLM 配置（.env 中的值也会生效）
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 LLM，仅在启用时要求完整
	if c.LLM.Enable {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM.APIKey 不能为空")
		}
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("LLM.BaseURL 不能为空")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("LLM.Model 不能为空")
		}
		if c.LLM.MaxTokens <= 0 {
			return fmt.Errorf("LLM.MaxTokens 必须大于 0")
		}
	}

	// 验证 Classifier
	if c.Classifier.LongPointLength <= 0 {
		return fmt.Errorf("Classifier.LongPointLength 必须大于 0")
	}
	if c.Classifier.MinTopicPoints <= 0 {
		return fmt.Errorf("Classifier.MinTopicPoints 必须大于 0")
	}
	if c.Classifier.CommonSimilarity <= 0 || c.Classifier.CommonSimilarity > 1 {
		return fmt.Errorf("Classifier.CommonSimilarity 必须在 (0, 1] 之间")
	}
	if c.Classifier.RelatedOverlap <= 0 || c.Classifier.RelatedOverlap > 1 {
		return fmt.Errorf("Classifier.RelatedOverlap 必须在 (0, 1] 之间")
	}

	// 验证 Report
	if c.Report.OutputDir == "" {
		return fmt.Errorf("Report.OutputDir 不能为空")
	}

	// 验证 Watch
	if c.Watch.Cron != "" {
		if _, err := cron.ParseStandard(c.Watch.Cron); err != nil {
			return fmt.Errorf("Watch.Cron 无效: %w", err)
		}
	}
	if c.Watch.Pattern != "" {
		if _, err := filepath.Match(c.Watch.Pattern, ""); err != nil {
			return fmt.Errorf("Watch.Pattern 无效: %w", err)
		}
	}
	if c.Watch.RetryTimes < 0 {
		return fmt.Errorf("Watch.RetryTimes 必须 >= 0")
	}
	if c.Watch.RetryInterval < 0 {
		return fmt.Errorf("Watch.RetryInterval 必须 >= 0")
	}

	// 验证 Database
	if c.Database.Path == "" {
		return fmt.Errorf("Database.Path 不能为空")
	}

	return nil
}
