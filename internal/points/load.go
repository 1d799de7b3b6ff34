package points

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Document 观点文件的解析结果
type Document struct {
	Topics []string
	Points []Point
}

// LoadFile 读取观点文件
func LoadFile(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析观点文件内容
// 第一行为逗号分隔的话题列表，第二行忽略，第三行起每行一个 JSON 观点
func Parse(data []byte) (*Document, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	doc := &Document{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case lineNo == 1:
			doc.Topics = parseTopics(line)
		case lineNo == 2:
		case line == "":
		default:
			var p Point
			if err := json.Unmarshal([]byte(line), &p); err != nil {
				return nil, fmt.Errorf("第 %d 行解析失败: %w", lineNo, err)
			}
			doc.Points = append(doc.Points, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取观点文件失败: %w", err)
	}
	if lineNo == 0 {
		return nil, fmt.Errorf("观点文件为空")
	}
	return doc, nil
}

func parseTopics(line string) []string {
	var topics []string
	for _, t := range strings.Split(line, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// LoadBundleFile 读取上游已分类好的 JSON 观点集合
func LoadBundleFile(filename string) (*Bundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseBundle(data)
}

// ParseBundle 解析 JSON 观点集合，字段形状不对时直接报错
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("解析观点集合失败: %w", err)
	}
	return &b, nil
}

// Checksum 返回文件内容的 sha256，用于识别已生成过报告的输入
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
