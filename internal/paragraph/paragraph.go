// Package paragraph 将分类好的观点按固定顺序拼接成一段文本。
package paragraph

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fachebot/point-digest/internal/points"
)

var ErrNilCleaner = errors.New("paragraph: cleaner 不能为空")

// Cleaner 清洗单条观点文本，isQuestion 为 true 时按问句格式处理
type Cleaner interface {
	Clean(text string, isQuestion bool) (string, error)
}

// CleanFunc 将普通函数适配为 Cleaner
type CleanFunc func(text string, isQuestion bool) (string, error)

func (f CleanFunc) Clean(text string, isQuestion bool) (string, error) {
	return f(text, isQuestion)
}

// Policy 清洗后对末尾字符的处理方式
type Policy int

const (
	// KeepTrailing 保留清洗结果原样
	KeepTrailing Policy = iota
	// StripTrailingDelimiter 去掉清洗结果的最后一个字符
	StripTrailingDelimiter
)

func (p Policy) String() string {
	switch p {
	case KeepTrailing:
		return "keep-trailing"
	case StripTrailingDelimiter:
		return "strip-trailing-delimiter"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Apply 对清洗后的文本执行策略，空串和单字符不会出错
func (p Policy) Apply(s string) string {
	if p != StripTrailingDelimiter || s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

// fragment 待输出的一条观点
type fragment struct {
	point   points.Point
	counter *points.Point
	topic   string
}

// Category 段落中的一个分类
type Category struct {
	Name       string
	Policy     Policy
	IsQuestion bool
	fragments  func(b *points.Bundle) []fragment
}

// Categories 分类输出顺序：论断 → 反驳 → 关联 → 否定 → 共识 → 展开 → 话题 → 问题
var Categories = []Category{
	{
		Name:   "counter_points",
		Policy: StripTrailingDelimiter,
		fragments: func(b *points.Bundle) []fragment {
			out := make([]fragment, 0, len(b.CounterPoints))
			for _, pair := range b.CounterPoints {
				// 反驳观点不进入段落，只挂在 counter 上给渲染层使用
				counter := pair.Other
				out = append(out, fragment{point: pair.Point, counter: &counter})
			}
			return out
		},
	},
	{
		Name:   "related_points",
		Policy: StripTrailingDelimiter,
		fragments: func(b *points.Bundle) []fragment {
			out := make([]fragment, 0, 2*len(b.RelatedPoints))
			for _, pair := range b.RelatedPoints {
				out = append(out, fragment{point: pair.Point}, fragment{point: pair.Other})
			}
			return out
		},
	},
	{
		Name:   "negated_points",
		Policy: KeepTrailing,
		fragments: func(b *points.Bundle) []fragment {
			out := make([]fragment, 0, len(b.NegatedPoints))
			for _, n := range b.NegatedPoints {
				out = append(out, fragment{point: n.Point})
			}
			return out
		},
	},
	{
		Name:      "common_points",
		Policy:    KeepTrailing,
		fragments: func(b *points.Bundle) []fragment { return plain(b.CommonPoints) },
	},
	{
		Name:      "longer_points",
		Policy:    KeepTrailing,
		fragments: func(b *points.Bundle) []fragment { return plain(b.LongerPoints) },
	},
	{
		Name:      "multiple_topic_points",
		Policy:    KeepTrailing,
		fragments: func(b *points.Bundle) []fragment { return plain(b.MultipleTopicPoints) },
	},
	{
		Name:   "commonly_discussed_topic_points",
		Policy: KeepTrailing,
		fragments: func(b *points.Bundle) []fragment {
			var out []fragment
			for _, g := range b.CommonlyDiscussedTopicPoints {
				// 话题名本身不输出
				for _, p := range g.Points {
					out = append(out, fragment{point: p, topic: g.Topic})
				}
			}
			return out
		},
	},
	{
		Name:       "question_points",
		Policy:     KeepTrailing,
		IsQuestion: true,
		fragments:  func(b *points.Bundle) []fragment { return plain(b.QuestionPoints) },
	},
}

func plain(pts []points.Point) []fragment {
	out := make([]fragment, 0, len(pts))
	for _, p := range pts {
		out = append(out, fragment{point: p})
	}
	return out
}

// Line 段落中的一行
type Line struct {
	Category string
	Text     string
	Source   points.Point
	Counter  *points.Point // 仅 counter_points 有值
	Topic    string        // 仅 commonly_discussed_topic_points 有值
}

// Lines 按分类顺序清洗每条观点，返回逐行结果
func Lines(bundle *points.Bundle, cleaner Cleaner) ([]Line, error) {
	if cleaner == nil {
		return nil, ErrNilCleaner
	}
	if bundle == nil {
		bundle = &points.Bundle{}
	}

	lines := make([]Line, 0, bundle.Len())
	for _, c := range Categories {
		for _, f := range c.fragments(bundle) {
			cleaned, err := cleaner.Clean(f.point.Text, c.IsQuestion)
			if err != nil {
				return nil, fmt.Errorf("清洗 %s 第 %d 条观点失败: %w", c.Name, countCategory(lines, c.Name)+1, err)
			}
			lines = append(lines, Line{
				Category: c.Name,
				Text:     c.Policy.Apply(cleaned),
				Source:   f.point,
				Counter:  f.counter,
				Topic:    f.topic,
			})
		}
	}
	return lines, nil
}

func countCategory(lines []Line, name string) int {
	n := 0
	for i := len(lines) - 1; i >= 0 && lines[i].Category == name; i-- {
		n++
	}
	return n
}

// Assemble 生成段落文本，每条观点一行，行尾为 "\n"
func Assemble(bundle *points.Bundle, cleaner Cleaner) (string, error) {
	lines, err := Lines(bundle, cleaner)
	if err != nil {
		return "", err
	}
	return Join(lines), nil
}

// Join 将逐行结果拼接为段落文本
func Join(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
