package points

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"plain",
		"  leading and trailing  ",
		"tabs\tand\nnewlines\r\n mixed   together",
		"unicode space wide",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
		assert.NotContains(t, once, "  ")
		assert.Equal(t, strings.TrimSpace(once), once)
	}
}

func TestAccept_MinimumLength(t *testing.T) {
	exact := strings.Repeat("a", MinParagraphLength)
	assert.False(t, Accept(exact, MinParagraphLength), "a paragraph of exactly the minimum length is rejected")
	assert.True(t, Accept(exact+"b", MinParagraphLength))

	// Surrounding whitespace does not count towards the length.
	assert.False(t, Accept("   "+exact+"\n\n", MinParagraphLength))

	// Length is measured in characters, not bytes.
	multibyte := strings.Repeat("é", MinParagraphLength)
	assert.False(t, Accept(multibyte, MinParagraphLength))
}

func TestSourceName(t *testing.T) {
	cases := map[string]string{
		"https://www.example.com/a/b":  "example.com",
		"http://news.example.org":      "news.example.org",
		"https://example.com:8443/x":   "example.com:8443",
		"https://www.www.example.com/": "www.example.com",
		"not a url":                    "not a url",
		"%zz":                          "%zz",
	}
	for in, want := range cases {
		assert.Equal(t, want, SourceName(in), "input %q", in)
	}
}

func TestNewResultPoint_DerivesSourceName(t *testing.T) {
	rp := NewResultPoint(Paragraph{Text: "text", Source: "https://www.example.com/page"})
	assert.Equal(t, "text", rp.Paragraph)
	assert.Equal(t, "https://www.example.com/page", rp.Source)
	assert.Equal(t, "example.com", rp.SourceName)
}

func TestFlatten_OrdersByDiscoveryIndex(t *testing.T) {
	// Completion order: url2 finished before url1.
	extractions := []Extraction{
		{Index: 1, URL: "https://two.example", Paragraphs: []string{"second  page\ttext"}},
		{Index: 0, URL: "https://one.example", Paragraphs: []string{"first", "  ", "also first"}},
	}

	got := Flatten(extractions)
	require.Len(t, got, 3)
	assert.Equal(t, Paragraph{Text: "first", Source: "https://one.example"}, got[0])
	assert.Equal(t, Paragraph{Text: "also first", Source: "https://one.example"}, got[1])
	assert.Equal(t, Paragraph{Text: "second page text", Source: "https://two.example"}, got[2])

	// Input slice is not reordered.
	assert.Equal(t, 1, extractions[0].Index)
}

func TestFlatten_Empty(t *testing.T) {
	assert.Empty(t, Flatten(nil))
	assert.Empty(t, Results(nil))
}
