// Package extract implements the content extractor: given an article
// URL, fetch the page and pull out the main article body, discarding
// navigation, ads, and boilerplate.
package extract

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"newscast/internal/logger"
)

// Timeout is the fixed per-request deadline (spec §4.4).
const Timeout = 15 * time.Second

// MinBodyChars is the minimum extracted length to count as a success;
// shorter output is treated as extraction failure.
const MinBodyChars = 100

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Extractor fetches and extracts article bodies. Never raises: Fetch
// returns ("", false) on any error, consistent with the contract's
// never-raise rule.
type Extractor struct {
	client *http.Client
}

// New builds an Extractor with the fixed timeout.
func New() *Extractor {
	return &Extractor{client: &http.Client{Timeout: Timeout}}
}

// Fetch retrieves url and returns its extracted main body text, or ok=false
// on any failure (network error, non-2xx, or under MinBodyChars output).
func (e *Extractor) Fetch(ctx context.Context, rawURL string) (string, bool) {
	log := logger.Stage("extract", map[string]string{"url": rawURL})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to build request")
		return "", false
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("non-2xx response")
		return "", false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid url")
		return "", false
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		log.Warn().Err(err).Msg("readability extraction failed")
		return "", false
	}

	body := renderPreservingStructure(article.Content)
	if body == "" {
		// readability's cleaned HTML didn't parse into recognizable
		// blocks (e.g. a single unwrapped text node); fall back to its
		// own flattened extraction.
		body = strings.TrimSpace(article.TextContent)
	}
	if len(body) < MinBodyChars {
		log.Warn().Int("chars", len(body)).Msg("extracted body too short")
		return "", false
	}
	return body, true
}

// renderPreservingStructure walks readability's cleaned article HTML
// with goquery and re-renders it as plain text that preserves paragraph
// breaks and table rows/columns (spec §4.4: "preserve paragraphs and
// tables"), grounded on the donor's ParseArticleContent
// (internal/fetch/fetch.go), which strips boilerplate elements then
// iterates a flat selector list with goquery, writing each matched
// block's trimmed text followed by a blank line. That pass never
// handles <table> specially; this one adds a table-row renderer so
// column structure survives instead of collapsing into one run of text.
func renderPreservingStructure(htmlContent string) string {
	if strings.TrimSpace(htmlContent) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .comments, .comment").Remove()

	var b strings.Builder
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, table").Each(func(_ int, item *goquery.Selection) {
		if goquery.NodeName(item) == "table" {
			renderTable(&b, item)
			return
		}
		if item.Closest("table").Length() > 0 {
			// already rendered as part of its enclosing table
			return
		}
		text := strings.TrimSpace(item.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})
	return strings.TrimSpace(b.String())
}

// renderTable writes one table's rows as "|"-delimited cells, one row
// per line, followed by a blank line separating it from surrounding
// paragraphs.
func renderTable(b *strings.Builder, table *goquery.Selection) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, " | "))
			b.WriteString("\n")
		}
	})
	b.WriteString("\n")
}
