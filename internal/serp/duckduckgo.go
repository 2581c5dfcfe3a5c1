package serp

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/FranksOps/sift/internal/scraper"
	"github.com/PuerkitoBio/goquery"
)

// DefaultDuckDuckGoEndpoint is the JavaScript-free DuckDuckGo results page.
const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the DuckDuckGo HTML results page. It needs no API key.
// Only the first results page is read.
type DuckDuckGo struct {
	Fetcher  *scraper.Fetcher
	Endpoint string
}

// NewDuckDuckGo returns a provider using fetcher against the public endpoint.
func NewDuckDuckGo(fetcher *scraper.Fetcher) *DuckDuckGo {
	return &DuckDuckGo{Fetcher: fetcher, Endpoint: DefaultDuckDuckGoEndpoint}
}

// Search implements SERPProvider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", limit)
	}
	if strings.TrimSpace(query) == "" || limit == 0 {
		return nil, nil
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	res, err := d.Fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("duckduckgo: %s", res.Error)
	}
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("duckduckgo: unexpected status %d", res.StatusCode)
	}

	return parseDuckDuckGo(res.Body, limit)
}

func parseDuckDuckGo(body []byte, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var results []Result
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		results = append(results, Result{
			URL:   unwrapRedirect(href),
			Title: strings.TrimSpace(a.Text()),
		})
		return len(results) < limit
	})
	return results, nil
}

// unwrapRedirect turns DuckDuckGo's "/l/?uddg=<target>" links into the target URL.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if (u.Host == "" || strings.HasSuffix(u.Host, "duckduckgo.com")) && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}
