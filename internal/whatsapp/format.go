package whatsapp

import (
	"regexp"
	"strings"
)

var (
	// Markdown bold **text** -> WhatsApp bold *text*
	boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

	// Markdown strikethrough ~~text~~ -> WhatsApp ~text~
	strikePattern = regexp.MustCompile(`~~(.+?)~~`)

	// Markdown headers ## text -> WhatsApp bold *text*
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

	// Markdown links [text](url) -> text (url)
	linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// FormatMessage converts markdown to WhatsApp-compatible formatting.
// WhatsApp supports *bold*, _italic_, ~strikethrough~ and backtick code
// natively.
func FormatMessage(markdown string) string {
	if markdown == "" {
		return ""
	}
	text := linkPattern.ReplaceAllString(markdown, "$1 ($2)")
	text = headerPattern.ReplaceAllString(text, "*$1*")
	text = boldPattern.ReplaceAllString(text, "*$1*")
	text = strikePattern.ReplaceAllString(text, "~$1~")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

// SplitMessage splits text into chunks below the WhatsApp size limit,
// preferring newline boundaries.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		end := maxLen
		if end > len(text) {
			end = len(text)
		}
		if end < len(text) {
			if idx := strings.LastIndex(text[:end], "\n"); idx > end/2 {
				end = idx + 1
			}
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}
