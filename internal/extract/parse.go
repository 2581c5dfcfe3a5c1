package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/sift/internal/points"
	"github.com/PuerkitoBio/goquery"
)

// ErrNoBody is returned for documents without a usable body element.
var ErrNoBody = errors.New("document has no body")

// removedSelector lists elements whose text never counts as content.
const removedSelector = "script, style, noscript, header, footer, nav, form, button, input, select, textarea, a"

// ParseParagraphs returns the normalized text of every p and li element in
// document order whose trimmed text is longer than minLen characters.
func ParseParagraphs(html string, minLen int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	// The HTML parser synthesizes an empty body for fragments and blank
	// input, so an empty body is treated the same as a missing one.
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil, ErrNoBody
	}
	if body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "" {
		return nil, ErrNoBody
	}

	body.Find(removedSelector).Remove()

	var out []string
	body.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if !points.Accept(text, minLen) {
			return
		}
		out = append(out, points.Normalize(text))
	})
	return out, nil
}
