package tts

import (
	"context"
	"errors"
	"testing"

	"newscast/internal/audio"
)

type stubProvider struct {
	failFor map[string]bool
	words   map[string][]WordTiming
}

func (s stubProvider) Synthesize(ctx context.Context, text string) (audio.Chunk, []WordTiming, error) {
	if s.failFor[text] {
		return audio.Chunk{}, nil, errors.New("provider unavailable")
	}
	wordCount := len(splitWords(text))
	chunk := audio.Chunk{Samples: make([]int16, wordCount*1000), SampleRateHz: 1000}
	return chunk, s.words[text], nil
}

func TestRenderAllPreservesOrderAcrossBatches(t *testing.T) {
	texts := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	svc := New(stubProvider{}, 4, 1000)

	results := svc.RenderAll(context.Background(), texts)

	if len(results) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(results))
	}
	for i, text := range texts {
		wantSamples := len(splitWords(text)) * 1000
		if len(results[i].Chunk.Samples) != wantSamples {
			t.Errorf("result %d out of order or wrong size: want %d samples, got %d", i, wantSamples, len(results[i].Chunk.Samples))
		}
	}
}

func TestRenderAllFallsBackToSilenceOnFailure(t *testing.T) {
	provider := stubProvider{failFor: map[string]bool{"bad": true}}
	svc := New(provider, DefaultBatchSize, 16000)

	results := svc.RenderAll(context.Background(), []string{"good", "bad"})

	if results[0].Failed {
		t.Errorf("expected first paragraph to succeed")
	}
	if !results[1].Failed {
		t.Fatalf("expected second paragraph to be marked failed")
	}
	if results[1].Err == nil {
		t.Errorf("expected Err to be populated on failure")
	}
	wantSamples := int(SilenceFallbackSeconds * 16000)
	if len(results[1].Chunk.Samples) != wantSamples {
		t.Errorf("expected %d silence samples, got %d", wantSamples, len(results[1].Chunk.Samples))
	}
}

func TestRenderOneAppliesUniformFallbackWhenProviderOmitsWords(t *testing.T) {
	svc := New(stubProvider{}, DefaultBatchSize, 1000)

	result := svc.renderOne(context.Background(), "four short little words")

	if len(result.Words) != 4 {
		t.Fatalf("expected 4 word timings, got %d", len(result.Words))
	}
	wantPerWord := 1.0 / UniformWordsPerSecond
	for i, w := range result.Words {
		if w.End-w.Start-wantPerWord > 1e-6 {
			t.Errorf("word %d duration mismatch: %v", i, w.End-w.Start)
		}
	}
}

func TestRenderOneKeepsProviderSuppliedWords(t *testing.T) {
	custom := []WordTiming{{Word: "hi", Start: 0, End: 0.3}}
	provider := stubProvider{words: map[string][]WordTiming{"hi": custom}}
	svc := New(provider, DefaultBatchSize, 1000)

	result := svc.renderOne(context.Background(), "hi")

	if len(result.Words) != 1 || result.Words[0] != custom[0] {
		t.Errorf("expected provider-supplied word timings to be kept unmodified, got %+v", result.Words)
	}
}

func TestUniformWordTimingsCapsToDurationWhenTextIsDenser(t *testing.T) {
	timings := uniformWordTimings("one two three four five six seven eight nine ten", 1.0)

	if len(timings) != 10 {
		t.Fatalf("expected 10 words, got %d", len(timings))
	}
	last := timings[len(timings)-1]
	if last.End > 1.0+1e-6 {
		t.Errorf("expected timings compressed to fit duration 1.0, last end is %v", last.End)
	}
}

func TestUniformWordTimingsEmptyText(t *testing.T) {
	if got := uniformWordTimings("   ", 2.0); got != nil {
		t.Errorf("expected nil timings for empty text, got %v", got)
	}
}

func TestValidateRejectsNonPositiveBatchSize(t *testing.T) {
	if err := Validate(0, 50); err == nil {
		t.Error("expected error for zero batch size")
	}
	if err := Validate(-1, 50); err == nil {
		t.Error("expected error for negative batch size")
	}
}

func TestValidateRejectsNegativeCrossfade(t *testing.T) {
	if err := Validate(8, -1); err == nil {
		t.Error("expected error for negative crossfade")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(DefaultBatchSize, 50); err != nil {
		t.Errorf("expected defaults to validate cleanly, got %v", err)
	}
}
