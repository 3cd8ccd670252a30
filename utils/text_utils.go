package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// 只识别常见的 HTML 标签名且属性必须带值，"cost<budget and revenue>cost" 这类比较式不算标记
var htmlTagPattern = regexp.MustCompile(`(?i)</?(p|div|span|br|hr|li|ul|ol|a|b|i|u|em|strong|code|pre|blockquote|h[1-6]|table|tr|td|th|img|script|style|body|html)(\s+[a-zA-Z:-]+\s*=\s*("[^"]*"|'[^']*'|[^\s"'<>]+))*\s*/?>`)

// DeduplicateSlice 去重字符串切片，保留首次出现的顺序
func DeduplicateSlice(input []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	for _, val := range input {
		val = strings.TrimSpace(val)
		if val != "" && !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}

	return result
}

// LimitSlice 截断到最多 n 个元素
func LimitSlice[T any](input []T, n int) []T {
	if len(input) > n {
		return input[:n]
	}
	return input
}

// SearchTerms 把文本拆成小写单词，只保留长度大于3的词，去重
func SearchTerms(texts ...string) []string {
	var words []string
	for _, text := range texts {
		fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, f := range fields {
			if utf8.RuneCountInString(f) > 3 {
				words = append(words, f)
			}
		}
	}
	return DeduplicateSlice(words)
}

// PlainText 富文本编辑器保存的条目可能带 HTML，匹配关键词前转换为纯文本
func PlainText(text string) string {
	if !htmlTagPattern.MatchString(text) {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return htmlTagPattern.ReplaceAllString(text, " ")
	}
	doc.Find("script, style").Remove()
	// 块级元素之间补空格，避免相邻段落的单词粘连
	doc.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, blockquote, tr").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Preview 截取前 n 个字符用于日志
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

// ExtractJSONFromText 从模型输出中提取 JSON 部分
func ExtractJSONFromText(text string) string {
	text = strings.TrimSpace(text)

	// 优先处理 ```json ... ``` 代码块
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx >= 0 && endIdx > startIdx {
		return text[startIdx : endIdx+1]
	}

	// 找不到 JSON 部分时返回原始文本，交给调用方报错
	return text
}
