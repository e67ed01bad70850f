package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"newscast/internal/apperr"
	"newscast/internal/core"
)

// scriptedGenerator returns canned responses keyed by a substring match
// against the prompt, in the order prompts are expected to arrive.
type scriptedGenerator struct {
	metadataResp string
	metadataErr  error
	summaryResp  string
	framingResp  string
	framingErr   error
	topicBodyErr map[string]error // keyed by topic name substring
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "a short episode title"):
		if g.metadataErr != nil {
			return "", g.metadataErr
		}
		return g.metadataResp, nil
	case strings.Contains(prompt, "Write a one-paragraph description"):
		return g.summaryResp, nil
	case strings.Contains(prompt, "Write a one-sentence podcast intro"):
		if g.framingErr != nil {
			return "", g.framingErr
		}
		return g.framingResp, nil
	default:
		for topicName, err := range g.topicBodyErr {
			if strings.Contains(prompt, topicName) && err != nil {
				return "", err
			}
		}
		return "Body text for " + extractTopic(prompt), nil
	}
}

func extractTopic(prompt string) string {
	idx := strings.Index(prompt, "Topic: ")
	if idx < 0 {
		return ""
	}
	rest := prompt[idx+len("Topic: "):]
	return strings.SplitN(rest, ".", 2)[0]
}

func sampleArticles() []core.Article {
	return []core.Article{
		{ID: "a1", Title: "Markets rally", Summary: "stocks up", Category: "Business", Subcategory: "Markets", SourceName: "Wire", ExtractedBody: "Stocks rose today on strong earnings."},
		{ID: "a2", Title: "Coup attempt fails", Summary: "coup foiled", Category: "World News", Subcategory: "Africa", SourceName: "Wire", ExtractedBody: "A coup attempt was foiled overnight."},
		{ID: "a3", Title: "Election results", Summary: "results in", Category: "World News", Subcategory: "Europe", SourceName: "Wire", ExtractedBody: "Election results came in overnight."},
	}
}

func TestBuildAssemblesIntroTopicsOutroInOrder(t *testing.T) {
	gen := &scriptedGenerator{
		metadataResp: "Today's Briefing\nmeasured",
		summaryResp:  "A look at today's top stories.",
		framingResp:  "Welcome back. Here's today.\nThat's all for now.",
	}
	orch := New(gen, 120)

	s, err := orch.Build(context.Background(), sampleArticles(), "", 5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if s.Title != "Today's Briefing" || s.Tone != "measured" {
		t.Errorf("unexpected metadata: title=%q tone=%q", s.Title, s.Tone)
	}
	if len(s.Paragraphs) != 4 {
		t.Fatalf("expected 4 paragraphs (intro, Markets, merged World News, outro), got %d: %+v", len(s.Paragraphs), s.Paragraphs)
	}
	if !s.Paragraphs[0].IsFraming || !s.Paragraphs[len(s.Paragraphs)-1].IsFraming {
		t.Errorf("expected first and last paragraphs to be framing")
	}
	middle := s.Paragraphs[2]
	if middle.Topic != "World News" {
		t.Errorf("expected Africa+Europe to fold into World News, got %q", middle.Topic)
	}
	if len(middle.SourceArticleIDs) != 2 {
		t.Errorf("expected 2 source articles folded into World News, got %v", middle.SourceArticleIDs)
	}
}

func TestBuildOrdersTopicsByCategoryThenName(t *testing.T) {
	articles := []core.Article{
		{ID: "a1", Title: "t1", Category: "Technology", Subcategory: "Startups", ExtractedBody: "body"},
		{ID: "a2", Title: "t2", Category: "Business", Subcategory: "Markets", ExtractedBody: "body"},
	}
	gen := &scriptedGenerator{metadataResp: "Title\nmeasured", framingResp: "intro.\noutro."}
	orch := New(gen, 120)

	s, err := orch.Build(context.Background(), articles, "", 5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	topicOrder := []string{s.Paragraphs[1].Topic, s.Paragraphs[2].Topic}
	if topicOrder[0] != "Markets" || topicOrder[1] != "Startups" {
		t.Errorf("expected Business/Markets before Technology/Startups, got %v", topicOrder)
	}
}

func TestBuildFailsOnMetadataError(t *testing.T) {
	gen := &scriptedGenerator{metadataErr: errors.New("model unavailable")}
	orch := New(gen, 120)

	if _, err := orch.Build(context.Background(), sampleArticles(), "", 5); err == nil {
		t.Fatal("expected metadata failure to be fatal")
	}
}

func TestBuildFallsBackOnFramingFailure(t *testing.T) {
	gen := &scriptedGenerator{
		metadataResp: "Title\nmeasured",
		framingErr:   errors.New("framing model down"),
	}
	orch := New(gen, 120)

	s, err := orch.Build(context.Background(), sampleArticles(), "Alex", 5)
	if err != nil {
		t.Fatalf("expected framing failure to fall back, not fail the build: %v", err)
	}
	if !strings.Contains(s.Paragraphs[0].Text, "Alex") {
		t.Errorf("expected canned intro to use display name, got %q", s.Paragraphs[0].Text)
	}
}

func TestBuildFailsOnAnyTopicBodyFailure(t *testing.T) {
	gen := &scriptedGenerator{
		metadataResp:  "Title\nmeasured",
		framingResp:   "intro.\noutro.",
		topicBodyErr:  map[string]error{"Markets": errors.New("topic model down")},
	}
	orch := New(gen, 120)

	_, err := orch.Build(context.Background(), sampleArticles(), "", 5)
	if err == nil {
		t.Fatal("expected a single topic body failure to fail the whole build")
	}
}

func TestBuildReturnsNoContentForEmptyArticles(t *testing.T) {
	orch := New(&scriptedGenerator{}, 120)

	_, err := orch.Build(context.Background(), nil, "", 5)
	if !apperr.Is(err, apperr.NoContent) {
		t.Fatalf("expected NoContent error, got %v", err)
	}
}

func TestWordBudgetsProportionalToArticleCount(t *testing.T) {
	topics := []topic{
		{name: "A", articles: make([]core.Article, 1)},
		{name: "B", articles: make([]core.Article, 3)},
	}
	budgets := wordBudgets(topics, 400)

	if budgets[0] != 100 || budgets[1] != 300 {
		t.Errorf("expected proportional split 100/300, got %v", budgets)
	}
}
