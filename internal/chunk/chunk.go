package chunk

import (
	"regexp"
	"strings"
)

// Separator joins paragraphs within a chunk and is the canonical separator
// used when reassembling translated chunks into a document body.
const Separator = "\n\n"

var blockCloseRe = regexp.MustCompile(`(?i)(</(?:p|div|section|article|blockquote|table|ul|ol|h[1-6])>)`)

// Split breaks text into ordered chunks of at most maxLen characters each,
// counted in Unicode code points. Paragraph boundaries (blank lines, and
// closing block-level HTML tags) are preserved; a single paragraph longer
// than maxLen is hard-split at fixed rune offsets.
//
// Split is deterministic: the same input always yields the same plan, which
// lets an interrupted job resume against a previously computed plan.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 || text == "" {
		return nil
	}
	if runeLen(text) <= maxLen {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)

	chunks := make([]string, 0, runeLen(text)/maxLen+1)
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range paragraphs {
		paraLen := runeLen(para)

		joined := paraLen
		if currentLen > 0 {
			joined += currentLen + runeLen(Separator)
		}

		if joined > maxLen {
			flush()
			if paraLen > maxLen {
				chunks = append(chunks, hardSplit(para, maxLen)...)
				continue
			}
		}

		if currentLen > 0 {
			current.WriteString(Separator)
			currentLen += runeLen(Separator)
		}
		current.WriteString(para)
		currentLen += paraLen
	}
	flush()

	return chunks
}

// splitParagraphs breaks text on blank lines, first inserting paragraph
// breaks after closing block-level tags so markup-heavy content without
// blank lines still chunks along structural boundaries.
func splitParagraphs(text string) []string {
	normalized := blockCloseRe.ReplaceAllString(text, "$1\n\n")

	parts := strings.Split(normalized, "\n\n")
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimRight(part, "\n")
		if strings.TrimSpace(part) == "" {
			continue
		}
		ret = append(ret, part)
	}
	return ret
}

// hardSplit cuts a paragraph at fixed rune offsets. This is the only place
// a chunk boundary may fall mid-sentence.
func hardSplit(text string, maxLen int) []string {
	runes := []rune(text)
	ret := make([]string, 0, len(runes)/maxLen+1)
	for start := 0; start < len(runes); start += maxLen {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		ret = append(ret, string(runes[start:end]))
	}
	return ret
}

func runeLen(s string) int {
	return len([]rune(s))
}
