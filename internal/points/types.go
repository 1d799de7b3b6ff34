package points

import (
	"encoding/json"
	"fmt"
)

// Point 一条观点，Text 为文本内容，其余字段原样保存在 Meta 中
type Point struct {
	Text string
	Meta map[string]any
}

// NewPoint 创建只有文本的观点
func NewPoint(text string) Point {
	return Point{Text: text}
}

// UnmarshalJSON 兼容 "text" 与旧格式 "String" 两种文本字段
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("观点必须是 JSON 对象: %w", err)
	}

	text, ok := raw["text"]
	key := "text"
	if !ok {
		text, ok = raw["String"]
		key = "String"
	}
	if !ok {
		return fmt.Errorf("观点缺少 text 字段")
	}
	s, ok := text.(string)
	if !ok {
		return fmt.Errorf("观点的 %s 字段必须是字符串", key)
	}
	delete(raw, key)

	p.Text = s
	p.Meta = nil
	if len(raw) > 0 {
		p.Meta = raw
	}
	return nil
}

func (p Point) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Meta)+1)
	for k, v := range p.Meta {
		out[k] = v
	}
	out["text"] = p.Text
	return json.Marshal(out)
}

// Pair 一对观点
// 在 counter_points 中 Other 是反驳观点，拼接段落时不会输出，仅供渲染层做悬浮注释
// 在 related_points 中 Other 是相关观点，会紧跟 Point 输出
type Pair struct {
	Point Point
	Other Point
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("观点对必须是数组: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("观点对必须恰好包含 2 个元素，实际 %d 个", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Point); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Other)
}

func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]Point{p.Point, p.Other})
}

// Negation 否定关系中的观点，Key 仅用于追溯，拼接段落时不使用
type Negation struct {
	Key   string
	Point Point
}

func (n *Negation) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("否定观点必须是数组: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("否定观点必须恰好包含 2 个元素，实际 %d 个", len(raw))
	}
	if err := json.Unmarshal(raw[0], &n.Key); err != nil {
		return fmt.Errorf("否定观点的 key 必须是字符串: %w", err)
	}
	return json.Unmarshal(raw[1], &n.Point)
}

func (n Negation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{n.Key, n.Point})
}

// TopicGroup 话题及其下所有观点
type TopicGroup struct {
	Topic  string
	Points []Point
}

func (g *TopicGroup) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("话题分组必须是数组: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("话题分组必须恰好包含 2 个元素，实际 %d 个", len(raw))
	}
	if err := json.Unmarshal(raw[0], &g.Topic); err != nil {
		return fmt.Errorf("话题名必须是字符串: %w", err)
	}
	if err := json.Unmarshal(raw[1], &g.Points); err != nil {
		return fmt.Errorf("话题 %q 的观点列表无效: %w", g.Topic, err)
	}
	return nil
}

func (g TopicGroup) MarshalJSON() ([]byte, error) {
	pts := g.Points
	if pts == nil {
		pts = []Point{}
	}
	return json.Marshal([]any{g.Topic, pts})
}

// Bundle 分类完成的观点集合，各字段顺序即上游决定的输出顺序
type Bundle struct {
	CounterPoints                []Pair       `json:"counter_points"`
	RelatedPoints                []Pair       `json:"related_points"`
	NegatedPoints                []Negation   `json:"negated_points"`
	CommonPoints                 []Point      `json:"common_points"`
	LongerPoints                 []Point      `json:"longer_points"`
	MultipleTopicPoints          []Point      `json:"multiple_topic_points"`
	CommonlyDiscussedTopicPoints []TopicGroup `json:"commonly_discussed_topic_points"`
	QuestionPoints               []Point      `json:"question_points"`
}

// Len 拼接段落时应输出的行数，反驳观点不计入
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	n := len(b.CounterPoints) +
		2*len(b.RelatedPoints) +
		len(b.NegatedPoints) +
		len(b.CommonPoints) +
		len(b.LongerPoints) +
		len(b.MultipleTopicPoints) +
		len(b.QuestionPoints)
	for _, g := range b.CommonlyDiscussedTopicPoints {
		n += len(g.Points)
	}
	return n
}

// Topics 按顺序返回热门话题名称
func (b *Bundle) Topics() []string {
	if b == nil {
		return nil
	}
	topics := make([]string, 0, len(b.CommonlyDiscussedTopicPoints))
	for _, g := range b.CommonlyDiscussedTopicPoints {
		topics = append(topics, g.Topic)
	}
	return topics
}
