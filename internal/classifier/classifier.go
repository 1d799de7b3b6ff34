package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/fachebot/point-digest/internal/config"
	"github.com/fachebot/point-digest/internal/logger"
	"github.com/fachebot/point-digest/internal/points"
)

// Classifier 将原始观点分到各个类别
type Classifier interface {
	Classify(ctx context.Context, topics []string, pts []points.Point) (*points.Bundle, error)
}

var (
	contrastMarkers = []string{"on the other hand ", "however ", "although ", "though ", "but ", "yet "}
	negationWords   = map[string]bool{"not": true, "no": true, "never": true}
	stopWords       = map[string]bool{
		"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
		"that": true, "this": true, "with": true, "have": true, "has": true, "had": true,
		"but": true, "not": true, "they": true, "them": true, "their": true, "there": true,
		"from": true, "you": true, "your": true, "its": true, "his": true, "her": true,
		"will": true, "would": true, "should": true, "could": true, "can": true, "been": true,
		"what": true, "which": true, "who": true, "why": true, "how": true, "when": true,
		"all": true, "any": true, "more": true, "most": true, "than": true, "then": true,
		"also": true, "just": true, "only": true, "very": true, "because": true, "about": true,
	}
)

// Heuristic 基于文本规则的默认分类器，阈值来自配置
type Heuristic struct {
	config config.Classifier
}

func NewHeuristic(cfg config.Classifier) *Heuristic {
	return &Heuristic{config: cfg}
}

// entry 单条观点的预处理结果
type entry struct {
	point      points.Point
	normalized string
	words      map[string]bool
	question   bool
	negated    bool
}

func (h *Heuristic) Classify(ctx context.Context, topics []string, pts []points.Point) (*points.Bundle, error) {
	entries := make([]entry, len(pts))
	for i, p := range pts {
		normalized := normalize(p.Text)
		entries[i] = entry{
			point:      p,
			normalized: normalized,
			words:      contentWords(normalized),
			question:   strings.HasSuffix(strings.TrimSpace(p.Text), "?"),
			negated:    hasNegation(normalized),
		}
	}

	b := &points.Bundle{}
	stages := []struct {
		name string
		run  func(b *points.Bundle, entries []entry, topics []string)
	}{
		{"negated_points", h.negations},
		{"counter_points", h.counters},
		{"common_points", h.common},
		{"related_points", h.related},
		{"longer_points", h.longer},
		{"multiple_topic_points", h.multipleTopics},
		{"commonly_discussed_topic_points", h.topicGroups},
		{"question_points", h.questions},
	}
	for _, stage := range stages {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("分类在 %s 阶段取消: %w", stage.name, ctx.Err())
		default:
		}
		stage.run(b, entries, topics)
	}

	logger.Debugf("[Classifier] %d 条观点分类完成: 反驳 %d, 相关 %d, 否定 %d, 共识 %d, 长观点 %d, 多话题 %d, 热门话题 %d, 问题 %d",
		len(pts), len(b.CounterPoints), len(b.RelatedPoints), len(b.NegatedPoints), len(b.CommonPoints),
		len(b.LongerPoints), len(b.MultipleTopicPoints), len(b.CommonlyDiscussedTopicPoints), len(b.QuestionPoints))
	return b, nil
}

// negations 去掉否定词后与另一条肯定观点相同的观点
func (h *Heuristic) negations(b *points.Bundle, entries []entry, _ []string) {
	for i, e := range entries {
		if e.question || !e.negated {
			continue
		}
		affirmative := removeNegation(e.normalized)
		for j, other := range entries {
			if j == i || other.question || other.negated {
				continue
			}
			if other.normalized == affirmative {
				b.NegatedPoints = append(b.NegatedPoints, points.Negation{Key: other.point.Text, Point: e.point})
				break
			}
		}
	}
}

// counters 以转折词开头的观点视为对前一条观点的反驳
func (h *Heuristic) counters(b *points.Bundle, entries []entry, _ []string) {
	for i := 1; i < len(entries); i++ {
		if entries[i].question || !startsWithContrast(entries[i].normalized) {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if !entries[j].question {
				b.CounterPoints = append(b.CounterPoints, points.Pair{Point: entries[j].point, Other: entries[i].point})
				break
			}
		}
	}
}

// common 编辑距离相近的观点归为一组，每组输出第一条
func (h *Heuristic) common(b *points.Bundle, entries []entry, _ []string) {
	grouped := make([]bool, len(entries))
	for i := range entries {
		if grouped[i] || entries[i].question || entries[i].normalized == "" {
			continue
		}
		size := 1
		for j := i + 1; j < len(entries); j++ {
			if grouped[j] || entries[j].question {
				continue
			}
			if levenshtein.Similarity(entries[i].normalized, entries[j].normalized, nil) >= h.config.CommonSimilarity {
				grouped[j] = true
				size++
			}
		}
		if size >= 2 {
			grouped[i] = true
			b.CommonPoints = append(b.CommonPoints, entries[i].point)
		}
	}
}

// related 关键词重合度足够高的两条观点配对，每条观点最多参与一对
func (h *Heuristic) related(b *points.Bundle, entries []entry, _ []string) {
	paired := make([]bool, len(entries))
	for i := range entries {
		if paired[i] || entries[i].question {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if paired[j] || entries[j].question || entries[i].normalized == entries[j].normalized {
				continue
			}
			if jaccard(entries[i].words, entries[j].words) >= h.config.RelatedOverlap {
				paired[i], paired[j] = true, true
				b.RelatedPoints = append(b.RelatedPoints, points.Pair{Point: entries[i].point, Other: entries[j].point})
				break
			}
		}
	}
}

func (h *Heuristic) longer(b *points.Bundle, entries []entry, _ []string) {
	for _, e := range entries {
		if !e.question && utf8.RuneCountInString(strings.TrimSpace(e.point.Text)) > h.config.LongPointLength {
			b.LongerPoints = append(b.LongerPoints, e.point)
		}
	}
}

func (h *Heuristic) multipleTopics(b *points.Bundle, entries []entry, topics []string) {
	for _, e := range entries {
		if e.question {
			continue
		}
		mentioned := 0
		for _, t := range topics {
			if mentions(e.normalized, t) {
				mentioned++
			}
		}
		if mentioned >= 2 {
			b.MultipleTopicPoints = append(b.MultipleTopicPoints, e.point)
		}
	}
}

// topicGroups 按话题列表顺序收集被足够多观点提及的话题
func (h *Heuristic) topicGroups(b *points.Bundle, entries []entry, topics []string) {
	for _, t := range topics {
		var members []points.Point
		for _, e := range entries {
			if !e.question && mentions(e.normalized, t) {
				members = append(members, e.point)
			}
		}
		if len(members) >= h.config.MinTopicPoints {
			b.CommonlyDiscussedTopicPoints = append(b.CommonlyDiscussedTopicPoints, points.TopicGroup{Topic: t, Points: members})
		}
	}
}

func (h *Heuristic) questions(b *points.Bundle, entries []entry, _ []string) {
	for _, e := range entries {
		if e.question {
			b.QuestionPoints = append(b.QuestionPoints, e.point)
		}
	}
}

// normalize 小写化并只保留字母、数字和撇号
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'' || r == '\u2019':
			return '\''
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func hasNegation(normalized string) bool {
	for _, w := range strings.Fields(normalized) {
		if negationWords[w] || strings.HasSuffix(w, "n't") {
			return true
		}
	}
	return false
}

func removeNegation(normalized string) string {
	words := strings.Fields(normalized)
	kept := words[:0:0]
	for _, w := range words {
		if negationWords[w] {
			continue
		}
		if strings.HasSuffix(w, "n't") {
			w = strings.TrimSuffix(w, "n't")
			if w == "" {
				continue
			}
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func startsWithContrast(normalized string) bool {
	s := normalized + " "
	for _, m := range contrastMarkers {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

func contentWords(normalized string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) < 3 || stopWords[w] || negationWords[w] {
			continue
		}
		words[w] = true
	}
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// mentions 按词边界判断观点是否提及话题
func mentions(normalized, topic string) bool {
	t := normalize(topic)
	if t == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+t+" ")
}
