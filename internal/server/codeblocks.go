package server

import "regexp"

// CodeBlock is one fenced code block extracted from a generation's
// response text.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// fencePattern matches a markdown fenced code block, capturing an
// optional language tag and the body. The original source referenced
// a dedicated code-extractor module that was not present in the
// filtered source tree; this regex reconstructs its observed behavior
// from the chat route's usage rather than a file to port directly.
var fencePattern = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")

// extractCodeBlocks returns every fenced code block found in text, in
// order of appearance. An empty slice, not nil, when none are found,
// so it serializes as `[]` rather than `null`.
func extractCodeBlocks(text string) []CodeBlock {
	blocks := []CodeBlock{}
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, CodeBlock{Language: lang, Code: trimTrailingNewline(m[2])})
	}
	return blocks
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}
