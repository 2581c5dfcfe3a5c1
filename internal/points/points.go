package points

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// MinParagraphLength is the number of characters a paragraph must exceed,
// before normalization, to be accepted as a candidate point.
const MinParagraphLength = 200

// Extraction holds the paragraphs collected from a single URL.
type Extraction struct {
	// Index is the position of URL in the discovery order.
	Index      int
	URL        string
	Paragraphs []string
}

// Paragraph is a normalized block of text tagged with the page it came from.
type Paragraph struct {
	Text   string `json:"paragraph"`
	Source string `json:"source"`
}

// ResultPoint is a single deduplicated statement returned to callers.
// Build it with NewResultPoint so SourceName always derives from Source.
type ResultPoint struct {
	Paragraph  string `json:"paragraph"`
	Source     string `json:"source"`
	SourceName string `json:"source_name"`
}

// NewResultPoint builds a ResultPoint from a paragraph.
func NewResultPoint(p Paragraph) ResultPoint {
	return ResultPoint{
		Paragraph:  p.Text,
		Source:     p.Source,
		SourceName: SourceName(p.Source),
	}
}

// SourceName returns the host of rawURL without a leading "www.".
// If rawURL cannot be parsed or has no host, rawURL is returned unchanged.
func SourceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// Normalize collapses every run of whitespace into a single space and trims
// the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Accept reports whether raw text is long enough to be a candidate point.
// The length is counted in characters on the trimmed, un-normalized text.
func Accept(raw string, minLen int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(raw)) > minLen
}

// Flatten concatenates extractions into a single ordered list of paragraphs.
// Extractions are ordered by discovery index first, so the order in which
// pages finished rendering does not affect the result.
func Flatten(extractions []Extraction) []Paragraph {
	ordered := make([]Extraction, len(extractions))
	copy(ordered, extractions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	var out []Paragraph
	for _, ex := range ordered {
		for _, text := range ex.Paragraphs {
			text = Normalize(text)
			if text == "" {
				continue
			}
			out = append(out, Paragraph{Text: text, Source: ex.URL})
		}
	}
	return out
}

// Results converts deduplicated paragraphs into ResultPoints.
func Results(paragraphs []Paragraph) []ResultPoint {
	out := make([]ResultPoint, 0, len(paragraphs))
	for _, p := range paragraphs {
		out = append(out, NewResultPoint(p))
	}
	return out
}
