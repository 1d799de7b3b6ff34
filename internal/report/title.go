package report

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	titlePattern    = regexp.MustCompile(`^(\w+)_p`)
	camelBoundary   = regexp.MustCompile(`(.)([A-Z])`)
	nonWordSequence = regexp.MustCompile(`\W+`)
)

// DeriveTitle 从观点文件名推导报告标题
// 例如 data/gunControl_points.txt -> "Gun Control"
func DeriveTitle(path string) (string, error) {
	base := filepath.Base(path)
	m := titlePattern.FindStringSubmatch(base)
	if m == nil {
		return "", fmt.Errorf("无法从文件名 %q 推导标题，文件名需形如 <name>_points.txt", base)
	}

	spaced := camelBoundary.ReplaceAllString(m[1], "$1 $2")
	words := strings.Fields(spaced)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " "), nil
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// FileName 报告文件名：标题小写，非单词字符替换为下划线
func FileName(title string) string {
	return nonWordSequence.ReplaceAllString(strings.ToLower(title), "_") + "_formatted_summary.html"
}
