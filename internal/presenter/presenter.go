package presenter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Presenter 观点文本清洗器，实现 paragraph.Cleaner
type Presenter struct{}

func New() *Presenter {
	return &Presenter{}
}

func (*Presenter) Clean(text string, isQuestion bool) (string, error) {
	return Clean(text, isQuestion), nil
}

// wrapQuotes 成对出现时会被去掉的引号
var wrapQuotes = map[rune]rune{
	'"':      '"',
	'\'':     '\'',
	'\u201c': '\u201d',
	'\u2018': '\u2019',
}

// Clean 规范化观点文本：NFC、合并空白、去掉包裹引号、首字母大写、补全句末标点
// isQuestion 为 true 时句末标点统一为 "?"
func Clean(text string, isQuestion bool) string {
	s := norm.NFC.String(text)
	s = strings.Join(strings.Fields(s), " ")
	s = stripWrappingQuotes(s)
	s = removeSpaceBeforePunct(s)
	s = strings.TrimLeft(s, ",;:-")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = capitalize(s)

	if isQuestion {
		return strings.TrimRight(s, ".!?;:, ") + "?"
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	switch last {
	case '.', '!', '?':
		return s
	case ',', ';', ':':
		return strings.TrimRight(s, ",;: ") + "."
	default:
		return s + "."
	}
}

func stripWrappingQuotes(s string) string {
	for {
		first, size := utf8.DecodeRuneInString(s)
		closing, ok := wrapQuotes[first]
		if !ok || len(s) < 2 {
			return s
		}
		last, lastSize := utf8.DecodeLastRuneInString(s)
		if last != closing || len(s) < size+lastSize {
			return s
		}
		s = strings.TrimSpace(s[size : len(s)-lastSize])
	}
}

func removeSpaceBeforePunct(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	runes := []rune(s)
	for i, r := range runes {
		if r == ' ' && i+1 < len(runes) && strings.ContainsRune(".,;:!?", runes[i+1]) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
