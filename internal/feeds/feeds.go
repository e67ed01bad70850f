// Package feeds polls RSS/Atom sources and turns each entry into the raw
// record the clustering pipeline ingests (spec §4.1's "record with URL,
// title, summary, source name, publication timestamp, feed category
// hint"). Adapted from the donor's RSS/Atom FeedManager, trimmed to the
// ingestor's needs: no feed persistence and no conditional-fetch
// bookkeeping; every poll fetches the whole feed again.
package feeds

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Source is one polled feed: its URL and the category hint applied to
// every article it yields when the clustering judge falls back (spec
// §4.1's LLM-error fallback).
type Source struct {
	URL         string
	Name        string
	CategoryHint string
}

// Item is one feed entry, shaped to feed directly into
// clustering.ArticleInput.
type Item struct {
	URL         string
	Title       string
	Summary     string
	SourceName  string
	PublishedAt time.Time
	CategoryHint string
}

type rss struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomFeed struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Link      []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

const pollerUserAgent = "newscast-ingestor/1.0"

// Poller fetches and parses RSS/Atom feeds.
type Poller struct {
	client *http.Client
}

// New builds a Poller with a bounded fetch timeout.
func New() *Poller {
	return &Poller{client: &http.Client{Timeout: 30 * time.Second}}
}

// Poll fetches src.URL and returns its entries as ingestion-ready Items.
// It tries RSS first, then Atom, matching the donor's try-then-fallback
// parse shape.
func (p *Poller) Poll(src Source) ([]Item, error) {
	req, err := http.NewRequest(http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", pollerUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", src.URL, resp.StatusCode)
	}

	body, err := readAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	var r rss
	if err := xml.Unmarshal(body, &r); err == nil && len(r.Channel.Items) > 0 {
		return itemsFromRSS(r, src), nil
	}

	var a atomFeed
	if err := xml.Unmarshal(body, &a); err == nil && len(a.Entries) > 0 {
		return itemsFromAtom(a, src), nil
	}

	return nil, fmt.Errorf("feed %s did not parse as RSS or Atom", src.URL)
}

func readAll(resp *http.Response) ([]byte, error) {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

func itemsFromRSS(r rss, src Source) []Item {
	items := make([]Item, 0, len(r.Channel.Items))
	for _, it := range r.Channel.Items {
		if it.Link == "" {
			continue
		}
		items = append(items, Item{
			URL:          it.Link,
			Title:        strings.TrimSpace(it.Title),
			Summary:      strings.TrimSpace(it.Description),
			SourceName:   src.Name,
			PublishedAt:  parseRSSDate(it.PubDate),
			CategoryHint: src.CategoryHint,
		})
	}
	return items
}

func itemsFromAtom(a atomFeed, src Source) []Item {
	items := make([]Item, 0, len(a.Entries))
	for _, e := range a.Entries {
		link := primaryLink(e.Link)
		if link == "" {
			continue
		}
		published := e.Published
		if published == "" {
			published = e.Updated
		}
		items = append(items, Item{
			URL:          link,
			Title:        strings.TrimSpace(e.Title),
			Summary:      strings.TrimSpace(e.Summary),
			SourceName:   src.Name,
			PublishedAt:  parseAtomDate(published),
			CategoryHint: src.CategoryHint,
		})
	}
	return items
}

func primaryLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

var rssDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

func parseRSSDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, f := range rssDateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseAtomDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return parseRSSDate(s)
}
