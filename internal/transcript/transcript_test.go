package transcript

import (
	"strings"
	"testing"

	"newscast/internal/audio"
	"newscast/internal/tts"
)

func TestBuildSegmentsUsesAudioOffsetsDirectly(t *testing.T) {
	paragraphs := []ParagraphInput{
		{
			Text:             "Markets rallied today.",
			Topic:            "Markets",
			SourceArticleIDs: []string{"a1"},
			Offset:           audio.Offset{Start: 0, End: 2.5},
			Words:            []tts.WordTiming{{Word: "Markets", Start: 0, End: 0.5}},
		},
		{
			Text:   "In sports news.",
			Topic:  "Sports",
			Offset: audio.Offset{Start: 2.45, End: 4.0},
		},
	}

	segments := BuildSegments(paragraphs)

	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Start != 0 || segments[0].End != 2.5 {
		t.Errorf("segment 0 should copy its paragraph's offset verbatim, got %+v", segments[0])
	}
	if segments[1].Start != 2.45 {
		t.Errorf("segment 1 should start at the crossfade-adjusted offset 2.45, got %v", segments[1].Start)
	}
	if len(segments[0].Words) != 1 || segments[0].Words[0].Start != 0 {
		t.Errorf("word timing should be offset by the paragraph start, got %+v", segments[0].Words)
	}
}

func TestBuildSegmentsExcludesFramingFromChapters(t *testing.T) {
	paragraphs := []ParagraphInput{
		{Text: "Welcome to your briefing.", Offset: audio.Offset{Start: 0, End: 3}, ExcludeFromChapters: true},
		{Text: "First story.", Topic: "World", Offset: audio.Offset{Start: 2.95, End: 6}},
	}

	segments := BuildSegments(paragraphs)

	if len(segments) != 1 {
		t.Fatalf("expected intro to be excluded, got %d segments", len(segments))
	}
	if segments[0].Topic != "World" {
		t.Errorf("expected remaining segment to be the topic paragraph, got %+v", segments[0])
	}
}

func TestRenderWebVTTUsesTopicAsChapterLabel(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 65.5, Topic: "World News"},
		{Start: 65.5, End: 130, Text: "No topic set here, should be truncated to fifty characters exactly for the cue"},
	}

	vtt := RenderWebVTT(segments)

	if !strings.HasPrefix(vtt, "WEBVTT\n\n") {
		t.Fatalf("expected WEBVTT header, got: %q", vtt[:20])
	}
	if !strings.Contains(vtt, "00:00:00.000 --> 00:01:05.500") {
		t.Errorf("expected formatted first cue timing, got: %s", vtt)
	}
	if !strings.Contains(vtt, "World News") {
		t.Errorf("expected topic label in cue, got: %s", vtt)
	}
}

func TestRenderWebVTTFallsBackToTruncatedText(t *testing.T) {
	longText := strings.Repeat("x", 80)
	segments := []Segment{{Start: 0, End: 1, Text: longText}}

	vtt := RenderWebVTT(segments)

	if strings.Contains(vtt, longText) {
		t.Errorf("expected text to be truncated to 50 runes, got full text in cue")
	}
	if !strings.Contains(vtt, strings.Repeat("x", 50)) {
		t.Errorf("expected a 50-char truncated label")
	}
}

func TestFormatWebVTTTimeHandlesHours(t *testing.T) {
	got := formatWebVTTTime(3725.125)
	if got != "01:02:05.125" {
		t.Errorf("expected 01:02:05.125, got %s", got)
	}
}

func TestToEpisodeSegmentsAssignsOrderIndex(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "a"},
		{Start: 1, End: 2, Text: "b"},
	}

	rows := ToEpisodeSegments("ep-1", segments)

	if len(rows) != 2 || rows[0].OrderIndex != 0 || rows[1].OrderIndex != 1 {
		t.Fatalf("expected order indices 0,1, got %+v", rows)
	}
	if rows[0].EpisodeID != "ep-1" {
		t.Errorf("expected episode id propagated, got %q", rows[0].EpisodeID)
	}
}
