package clustering

import (
	"context"
	"strings"
	"testing"
	"time"

	"newscast/internal/core"
)

func TestHashIsDeterministic(t *testing.T) {
	a := Hash("https://example.com/a")
	b := Hash("https://example.com/a")
	c := Hash("https://example.com/b")

	if a != b {
		t.Errorf("Hash should be deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("Hash should differ for different URLs")
	}
	if len(a) != 32 {
		t.Errorf("expected 32-char hex MD5, got %d chars", len(a))
	}
}

func TestParseJudgeResponse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantOK  bool
		wantAct string
	}{
		{
			name:    "plain json",
			raw:     `{"action":"create_new","subcategory":"Technology"}`,
			wantOK:  true,
			wantAct: "create_new",
		},
		{
			name:    "fenced code block",
			raw:     "```json\n{\"action\":\"join_existing\",\"cluster_id\":\"c1\"}\n```",
			wantOK:  true,
			wantAct: "join_existing",
		},
		{
			name:   "invalid action",
			raw:    `{"action":"maybe"}`,
			wantOK: false,
		},
		{
			name:   "not json",
			raw:    "sorry, I cannot help with that",
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok := parseJudgeResponse(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && d.Action != tc.wantAct {
				t.Errorf("action = %q, want %q", d.Action, tc.wantAct)
			}
		})
	}
}

type fakeJudge struct {
	response string
	err      error
}

func (f *fakeJudge) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestJudgeClustering_NeutralFallbackOnError(t *testing.T) {
	p := &Pipeline{judge: &fakeJudge{err: errBoom}}
	d, failed := p.judgeClustering(context.Background(), ArticleInput{FeedHint: "world"}, nil)
	if !failed {
		t.Fatal("expected llmFailed = true")
	}
	if d.Action != "create_new" || d.Importance != 50.0 {
		t.Errorf("unexpected fallback decision: %+v", d)
	}
}

func TestJudgeClustering_JoinWithoutClusterIDFallsBackToTopNeighbor(t *testing.T) {
	raw := `{"action":"join_existing","subcategory":"Technology","tags":["a","b"]}`
	p := &Pipeline{judge: &fakeJudge{response: raw}}

	neighbors := []core.Article{{ClusterID: "c-top"}, {ClusterID: "c-second"}}
	d, failed := p.judgeClustering(context.Background(), ArticleInput{}, neighbors)
	if failed {
		t.Fatal("parseable response should not be llmFailed")
	}
	if d.Action != "join_existing" || d.ClusterID != "c-top" {
		t.Errorf("expected join_existing onto top neighbor, got %+v", d)
	}

	d, failed = p.judgeClustering(context.Background(), ArticleInput{}, nil)
	if failed {
		t.Fatal("parseable response should not be llmFailed")
	}
	if d.Action != "create_new" {
		t.Errorf("expected degrade to create_new with no neighbors, got %q", d.Action)
	}
}

func TestBuildJudgePromptIncludesNeighborsAndFields(t *testing.T) {
	in := ArticleInput{
		Title:       "Central Bank Raises Rates",
		Summary:     "The central bank raised interest rates by 0.25%.",
		SourceName:  "Example Wire",
		PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	prompt := buildJudgePrompt(in, nil)

	if !strings.Contains(prompt, in.Title) {
		t.Error("prompt should include article title")
	}
	if !strings.Contains(prompt, "Respond with JSON only") {
		t.Error("prompt should instruct strict JSON output")
	}
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }
