// Package transcript builds the per-episode transcript JSON and WebVTT
// chapter file (spec §4.7). It is grounded on transcript_service.py's
// generate_forced_alignment/generate_webvtt pair, with one deliberate
// change: the original tracked a separate "current_audio_time" clock
// that added a flat 0.25s pause between chunks, which drifted out of
// sync with the audio assembler's own crossfade-based clock (spec §9,
// Open Question #1). This package does not keep its own clock — it
// takes each paragraph's audio.Offset directly from internal/audio's
// Combine, so transcript and audio always agree on where a chapter
// starts.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"

	"newscast/internal/audio"
	"newscast/internal/core"
	"newscast/internal/tts"
)

// WordTiming is one word's absolute position in the assembled episode.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one paragraph's transcript entry: absolute start/end in
// the assembled episode, its source text, the topic it belongs to (used
// as the WebVTT chapter label), and the articles it was grounded on.
type Segment struct {
	Start            float64      `json:"start"`
	End              float64      `json:"end"`
	Text             string       `json:"text"`
	Topic            string       `json:"topic,omitempty"`
	SourceArticleIDs []string     `json:"source_article_ids,omitempty"`
	Words            []WordTiming `json:"words,omitempty"`
}

// ParagraphInput is one rendered script paragraph, positioned in the
// assembled timeline by internal/audio.Combine.
type ParagraphInput struct {
	Text             string
	Topic            string
	SourceArticleIDs []string
	Offset           audio.Offset
	Words            []tts.WordTiming // relative to the paragraph's own chunk start
	ExcludeFromChapters bool // true for intro/outro framing, per spec §4.7
}

// BuildSegments converts rendered paragraphs into absolute-time
// transcript segments. Intro/outro paragraphs (ExcludeFromChapters)
// still occupy time in the timeline but are omitted from the returned
// segments, mirroring transcript_service.py's "skip intro and outro
// from timestamps" behavior.
func BuildSegments(paragraphs []ParagraphInput) []Segment {
	var segments []Segment
	for _, p := range paragraphs {
		if p.ExcludeFromChapters {
			continue
		}

		var words []WordTiming
		for _, w := range p.Words {
			words = append(words, WordTiming{
				Word:  w.Word,
				Start: p.Offset.Start + w.Start,
				End:   p.Offset.Start + w.End,
			})
		}

		segments = append(segments, Segment{
			Start:            p.Offset.Start,
			End:              p.Offset.End,
			Text:             p.Text,
			Topic:            p.Topic,
			SourceArticleIDs: p.SourceArticleIDs,
			Words:            words,
		})
	}
	return segments
}

// RenderJSON marshals segments as the transcript artifact stored at
// transcripts/{episode_id}.json (spec §4.8).
func RenderJSON(segments []Segment) ([]byte, error) {
	out, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return out, nil
}

// RenderWebVTT renders one chapter cue per segment, labeled by topic
// (falling back to a truncated excerpt of the segment text when no
// topic is set), grounded on generate_webvtt/_format_webvtt_time.
func RenderWebVTT(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	for _, seg := range segments {
		label := seg.Topic
		if label == "" {
			label = truncate(seg.Text, 50)
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", formatWebVTTTime(seg.Start), formatWebVTTTime(seg.End), label)
	}
	return b.String()
}

// formatWebVTTTime renders seconds as HH:MM:SS.mmm.
func formatWebVTTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := seconds - float64(hours*3600+minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ToEpisodeSegments projects transcript segments into persisted
// core.EpisodeSegment rows, in timeline order.
func ToEpisodeSegments(episodeID string, segments []Segment) []core.EpisodeSegment {
	out := make([]core.EpisodeSegment, len(segments))
	for i, seg := range segments {
		out[i] = core.EpisodeSegment{
			EpisodeID:        episodeID,
			OrderIndex:       i,
			StartSeconds:     seg.Start,
			EndSeconds:       seg.End,
			Text:             seg.Text,
			Topic:            seg.Topic,
			SourceArticleIDs: seg.SourceArticleIDs,
		}
	}
	return out
}
