package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyInput(t *testing.T) {
	assert.Empty(t, Split("", 100))
}

func TestSplit_InputWithinLimit(t *testing.T) {
	text := "short paragraph\n\nanother one"
	chunks := Split(text, 1000)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_ZeroMaxLen(t *testing.T) {
	assert.Empty(t, Split("anything", 0))
	assert.Empty(t, Split("anything", -5))
}

func TestSplit_ParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("x", 40)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := Split(text, 90)

	// Two 40-char paragraphs plus separator fit in 90; a third does not.
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 90)
	}
	assert.Equal(t, para+"\n\n"+para, chunks[0])
	assert.Equal(t, para+"\n\n"+para, chunks[1])
}

func TestSplit_SizeBoundHolds(t *testing.T) {
	paras := []string{
		strings.Repeat("a", 10),
		strings.Repeat("b", 500),
		strings.Repeat("c", 37),
		strings.Repeat("d", 99),
		strings.Repeat("e", 3),
	}
	text := strings.Join(paras, "\n\n")

	for _, maxLen := range []int{1, 7, 50, 100, 400} {
		for _, c := range Split(text, maxLen) {
			assert.LessOrEqual(t, len([]rune(c)), maxLen, "maxLen=%d", maxLen)
			assert.NotEmpty(t, c)
		}
	}
}

func TestSplit_HardSplitsOversizedParagraph(t *testing.T) {
	para := strings.Repeat("y", 250)
	chunks := Split(para, 100)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("y", 100), chunks[0])
	assert.Equal(t, strings.Repeat("y", 100), chunks[1])
	assert.Equal(t, strings.Repeat("y", 50), chunks[2])
	assert.Equal(t, para, strings.Join(chunks, ""))
}

func TestSplit_HardSplitCountsRunesNotBytes(t *testing.T) {
	// 3 bytes per rune; splitting by bytes would corrupt the text.
	para := strings.Repeat("你", 150)
	chunks := Split(para, 100)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("你", 100), chunks[0])
	assert.Equal(t, strings.Repeat("你", 50), chunks[1])
}

func TestSplit_BlockTagsActAsParagraphBreaks(t *testing.T) {
	text := "<p>" + strings.Repeat("a", 60) + "</p><p>" + strings.Repeat("b", 60) + "</p>"

	chunks := Split(text, 80)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "aaa")
	assert.Contains(t, chunks[1], "bbb")
}

func TestSplit_Reconstruction(t *testing.T) {
	paras := []string{
		"First paragraph with some words.",
		"Second paragraph, a little longer than the first one.",
		"Third.",
		strings.Repeat("Fourth is quite long. ", 5),
	}
	text := strings.Join(paras, "\n\n")

	chunks := Split(text, 120)
	rejoined := strings.Join(chunks, Separator)

	normalize := func(s string) string {
		fields := strings.Fields(s)
		return strings.Join(fields, " ")
	}
	assert.Equal(t, normalize(text), normalize(rejoined))
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	first := Split(text, 333)
	second := Split(text, 333)
	assert.Equal(t, first, second)
}
