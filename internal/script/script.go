// Package script implements the Script Orchestrator (spec §4.5): it
// drafts an episode's text in four logically parallel slots —
// Metadata, Summarizer, Framing, and one TopicBody agent per topic —
// then assembles the results into an ordered paragraph sequence. The
// fan-out over topics starts one goroutine per topic, joined by a
// sync.WaitGroup, each writing into its own slot of an index-addressed
// result slice; the orchestrator applies no concurrency cap of its own,
// and rate limiting is left to the Generator adapter.
package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"newscast/internal/apperr"
	"newscast/internal/core"
	"newscast/internal/logger"
	"newscast/internal/taxonomy"
)

// DefaultWordsPerMinute is the speaking rate used to size the total
// word target and per-topic budgets (spec §4.5).
const DefaultWordsPerMinute = 120

// MaxTopicBodyChars is how much of each article's body a TopicBody
// prompt is allowed to see (spec §4.5).
const MaxTopicBodyChars = 5000

// BudgetTolerance bounds a TopicBody response to [0.85, 1.05] of its
// computed word budget (spec §4.5).
const (
	BudgetToleranceLow  = 0.85
	BudgetToleranceHigh = 1.05
)

// Generator produces plain text from a prompt. It is the same narrow
// shape as internal/clustering.Judge, so both the Gemini adapter and
// test doubles satisfy it without extra glue.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Paragraph is one unit of the assembled script, in final emission
// order.
type Paragraph struct {
	Text             string
	Topic            string // empty for intro/outro
	SourceArticleIDs []string
	IsFraming        bool // true for intro/outro paragraphs
}

// Script is the full drafted episode text.
type Script struct {
	Title                    string
	Description              string
	Tone                     string
	Paragraphs               []Paragraph
	EstimatedDurationSeconds float64
}

// Orchestrator drafts a Script from a set of selected articles.
type Orchestrator struct {
	llm            Generator
	wordsPerMinute int
}

// New builds an Orchestrator. wordsPerMinute <= 0 uses DefaultWordsPerMinute.
func New(llm Generator, wordsPerMinute int) *Orchestrator {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	return &Orchestrator{llm: llm, wordsPerMinute: wordsPerMinute}
}

type topic struct {
	name     string
	category string
	articles []core.Article
}

// Build drafts a complete Script for the given articles (already
// selected and extracted), per the drafting graph in spec §4.5.
func (o *Orchestrator) Build(ctx context.Context, articles []core.Article, displayName string, durationMinutes int) (*Script, error) {
	if len(articles) == 0 {
		return nil, apperr.New(apperr.NoContent, "script: no articles to draft from", nil)
	}
	log := logger.Stage("script", nil)

	topics := groupTopics(articles)
	totalWords := durationMinutes * o.wordsPerMinute
	budgets := wordBudgets(topics, totalWords)

	// Metadata stage: sequential, fatal on failure.
	meta, err := o.runMetadata(ctx, articles)
	if err != nil {
		return nil, fmt.Errorf("script: metadata stage: %w", err)
	}
	log.Info().Str("title", meta.title).Str("tone", meta.tone).Msg("metadata drafted")

	// Summarizer and Framing run in parallel once Metadata completes.
	var description, intro, outro string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		description = o.runSummarizer(ctx, articles, meta.tone)
	}()
	go func() {
		defer wg.Done()
		intro, outro = o.runFraming(ctx, meta.tone, displayName)
	}()
	wg.Wait()

	// TopicBody agents: fully parallel, one per topic. Any failure is
	// fatal to the whole episode (spec §4.5).
	bodies := make([]string, len(topics))
	errs := make([]error, len(topics))
	var bodyWG sync.WaitGroup
	for i, t := range topics {
		bodyWG.Add(1)
		go func(idx int, t topic) {
			defer bodyWG.Done()
			text, err := o.runTopicBody(ctx, t, meta.tone, budgets[idx])
			bodies[idx] = text
			errs[idx] = err
		}(i, t)
	}
	bodyWG.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("script: topic %q body: %w", topics[i].name, err)
		}
	}

	paragraphs := assemble(intro, outro, topics, bodies)
	totalDraftedWords := 0
	for _, p := range paragraphs {
		totalDraftedWords += len(strings.Fields(p.Text))
	}

	return &Script{
		Title:                   meta.title,
		Description:             description,
		Tone:                    meta.tone,
		Paragraphs:              paragraphs,
		EstimatedDurationSeconds: float64(totalDraftedWords) / float64(o.wordsPerMinute) * 60,
	}, nil
}

// groupTopics partitions articles by subcategory, folding every
// world-news region into the single virtual "World News" topic, and
// orders topics by (category, topic name) (spec §4.5).
func groupTopics(articles []core.Article) []topic {
	byName := map[string]*topic{}
	var order []string

	for _, a := range articles {
		name := a.Subcategory
		if taxonomy.IsWorldNewsRegion(a.Subcategory) {
			name = taxonomy.WorldNewsTopic
		}
		if _, ok := byName[name]; !ok {
			category := a.Category
			if name == taxonomy.WorldNewsTopic {
				category = taxonomy.WorldNewsTopic
			}
			byName[name] = &topic{name: name, category: category}
			order = append(order, name)
		}
		byName[name].articles = append(byName[name].articles, a)
	}

	topics := make([]topic, 0, len(order))
	for _, name := range order {
		topics = append(topics, *byName[name])
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].category != topics[j].category {
			return topics[i].category < topics[j].category
		}
		return topics[i].name < topics[j].name
	})
	return topics
}

// wordBudgets computes each topic's word budget proportional to its
// article count within totalWords (spec §4.5).
func wordBudgets(topics []topic, totalWords int) []int {
	totalArticles := 0
	for _, t := range topics {
		totalArticles += len(t.articles)
	}
	if totalArticles == 0 {
		return make([]int, len(topics))
	}

	budgets := make([]int, len(topics))
	for i, t := range topics {
		budgets[i] = totalWords * len(t.articles) / totalArticles
	}
	return budgets
}

type metadata struct {
	title string
	tone  string
}

// runMetadata consumes the top 3 articles by importance-adjacent order
// (caller-selected order is assumed to already reflect importance) and
// asks for {title, tone} (spec §4.5). Metadata failure is fatal.
func (o *Orchestrator) runMetadata(ctx context.Context, articles []core.Article) (metadata, error) {
	top := articles
	if len(top) > 3 {
		top = top[:3]
	}

	var b strings.Builder
	b.WriteString(groundingPreamble())
	b.WriteString("Given these top stories, respond with exactly two lines: a short episode title, then a one-word tone (e.g. measured, urgent, upbeat).\n\n")
	for _, a := range top {
		fmt.Fprintf(&b, "- %s: %s\n", a.Title, a.Summary)
	}

	resp, err := o.llm.GenerateText(ctx, b.String())
	if err != nil {
		return metadata{}, err
	}

	lines := strings.SplitN(strings.TrimSpace(resp), "\n", 2)
	title := strings.TrimSpace(lines[0])
	tone := "measured"
	if len(lines) > 1 {
		tone = strings.TrimSpace(lines[1])
	}
	if title == "" {
		return metadata{}, apperr.New(apperr.ContractViolation, "script: metadata response had no title", nil)
	}
	return metadata{title: title, tone: tone}, nil
}

// runSummarizer consumes the top 8 titles and drafts the episode
// description (spec §4.5).
func (o *Orchestrator) runSummarizer(ctx context.Context, articles []core.Article, tone string) string {
	top := articles
	if len(top) > 8 {
		top = top[:8]
	}

	var b strings.Builder
	b.WriteString(groundingPreamble())
	fmt.Fprintf(&b, "Tone: %s. Write a one-paragraph description of an episode covering these stories:\n\n", tone)
	for _, a := range top {
		fmt.Fprintf(&b, "- %s\n", a.Title)
	}

	resp, err := o.llm.GenerateText(ctx, b.String())
	if err != nil {
		logger.Stage("script", nil).Warn().Err(err).Msg("summarizer failed, description left blank")
		return ""
	}
	return strings.TrimSpace(resp)
}

// runFraming drafts intro/outro text. Failure falls back to canned
// strings (spec §4.5) rather than failing the episode.
func (o *Orchestrator) runFraming(ctx context.Context, tone, displayName string) (intro, outro string) {
	greeting := "Welcome back"
	if displayName != "" {
		greeting = fmt.Sprintf("Welcome back, %s", displayName)
	}

	prompt := fmt.Sprintf("%sTone: %s. Write a one-sentence podcast intro starting with %q, then a one-sentence outro. Respond as two lines.",
		groundingPreamble(), tone, greeting)

	resp, err := o.llm.GenerateText(ctx, prompt)
	if err != nil {
		logger.Stage("script", nil).Warn().Err(err).Msg("framing failed, using canned intro/outro")
		return greeting + ". Here's what's happening today.", "That's all for this episode. Thanks for listening."
	}

	lines := strings.SplitN(strings.TrimSpace(resp), "\n", 2)
	intro = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		outro = strings.TrimSpace(lines[1])
	}
	if intro == "" || outro == "" {
		return greeting + ". Here's what's happening today.", "That's all for this episode. Thanks for listening."
	}
	return intro, outro
}

// runTopicBody drafts one topic's paragraph within [0.85, 1.05] of its
// word budget (spec §4.5). A single TopicBody failure is fatal to the
// whole episode.
func (o *Orchestrator) runTopicBody(ctx context.Context, t topic, tone string, budget int) (string, error) {
	low := int(float64(budget) * BudgetToleranceLow)
	high := int(float64(budget) * BudgetToleranceHigh)

	var b strings.Builder
	b.WriteString(groundingPreamble())
	fmt.Fprintf(&b, "Tone: %s. Topic: %s. Write between %d and %d words covering these stories:\n\n", tone, t.name, low, high)
	for _, a := range t.articles {
		body := a.ExtractedBody
		if len(body) > MaxTopicBodyChars {
			body = body[:MaxTopicBodyChars]
		}
		if body == "" {
			body = a.Summary
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.Title, a.SourceName, body)
	}

	text, err := o.llm.GenerateText(ctx, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// assemble emits paragraphs in order: intro, one per topic in
// computed order, outro (spec §4.5).
func assemble(intro, outro string, topics []topic, bodies []string) []Paragraph {
	paragraphs := make([]Paragraph, 0, len(topics)+2)
	paragraphs = append(paragraphs, Paragraph{Text: intro, IsFraming: true})

	for i, t := range topics {
		ids := make([]string, len(t.articles))
		for j, a := range t.articles {
			ids[j] = a.ID
		}
		paragraphs = append(paragraphs, Paragraph{
			Text:             bodies[i],
			Topic:            t.name,
			SourceArticleIDs: ids,
		})
	}

	paragraphs = append(paragraphs, Paragraph{Text: outro, IsFraming: true})
	return paragraphs
}

// groundingPreamble is prepended to every prompt, enforcing spec
// §4.5's "plain text only, no markdown... use only information present
// in the provided sources" rule.
func groundingPreamble() string {
	return "Respond in plain text only: no markdown, no asterisks, no special formatting characters. " +
		"Use only information present in the sources given below; do not invent facts.\n\n"
}
