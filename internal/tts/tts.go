// Package tts renders script paragraphs to speech (spec §4.6). It fans
// paragraphs out in bounded batches across a Provider, falls back to
// silence on a per-chunk failure, and derives per-word timing either
// from the provider's own timestamps or a uniform fallback — the
// parallel-batch shape is grounded on tts_service.py's
// ThreadPoolExecutor(max_workers=8) batching; the provider abstraction
// generalizes the donor's tts.go (which already modeled
// TTSProvider/TTSConfig for ElevenLabs/OpenAI/Google) to the spec's
// PCM+word-timestamp contract.
package tts

import (
	"context"
	"fmt"
	"sync"

	"newscast/internal/audio"
	"newscast/internal/logger"
)

// UniformWordsPerSecond is the fallback speaking rate used when a
// provider does not return per-word timestamps (spec §4.6).
const UniformWordsPerSecond = 2.67

// DefaultBatchSize matches spec §6's tts.batch_size default.
const DefaultBatchSize = 8

// SilenceFallbackSeconds is substituted for a paragraph whose rendering
// fails (spec §4.6).
const SilenceFallbackSeconds = 2.0

// WordTiming is one word's position in a rendered chunk, relative to
// the chunk's own start.
type WordTiming struct {
	Word  string
	Start float64
	End   float64
}

// Rendered is one paragraph's synthesis result.
type Rendered struct {
	Chunk  audio.Chunk
	Words  []WordTiming
	Failed bool
	Err    error
}

// Provider synthesizes one paragraph of text to speech. Implementations
// return nil Words when the backend does not support word-level timing;
// the Service then applies the uniform fallback.
type Provider interface {
	Synthesize(ctx context.Context, text string) (audio.Chunk, []WordTiming, error)
}

// Service fans paragraphs out to a Provider in bounded batches.
type Service struct {
	provider   Provider
	batchSize  int
	sampleRate int
}

// New builds a Service. sampleRateHz is the provider's native rate,
// used to size the silence fallback for failed chunks.
func New(provider Provider, batchSize, sampleRateHz int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if sampleRateHz <= 0 {
		sampleRateHz = 24000
	}
	return &Service{provider: provider, batchSize: batchSize, sampleRate: sampleRateHz}
}

// RenderAll renders every paragraph in texts, in batches of up to
// batchSize concurrent calls, preserving input order in the result. A
// single paragraph's failure is logged and replaced with silence; it
// never fails the batch (spec §4.6).
func (s *Service) RenderAll(ctx context.Context, texts []string) []Rendered {
	results := make([]Rendered, len(texts))
	log := logger.Stage("tts", nil)

	for batchStart := 0; batchStart < len(texts); batchStart += s.batchSize {
		batchEnd := batchStart + s.batchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = s.renderOne(ctx, texts[idx])
			}(i)
		}
		wg.Wait()
		log.Info().Int("batch_start", batchStart).Int("batch_end", batchEnd).Msg("tts batch complete")
	}
	return results
}

func (s *Service) renderOne(ctx context.Context, text string) Rendered {
	log := logger.Stage("tts", nil)

	chunk, words, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("tts rendering failed, substituting silence")
		return Rendered{
			Chunk:  audio.Silence(SilenceFallbackSeconds, s.sampleRate),
			Failed: true,
			Err:    err,
		}
	}

	if len(words) == 0 {
		words = uniformWordTimings(text, chunk.Duration())
	}
	return Rendered{Chunk: chunk, Words: words}
}

// uniformWordTimings distributes text's words evenly across
// durationSeconds at UniformWordsPerSecond when the provider omitted
// per-word timestamps (spec §4.6).
func uniformWordTimings(text string, durationSeconds float64) []WordTiming {
	words := splitWords(text)
	if len(words) == 0 {
		return nil
	}

	perWord := 1.0 / UniformWordsPerSecond
	total := perWord * float64(len(words))
	if total > durationSeconds && durationSeconds > 0 {
		perWord = durationSeconds / float64(len(words))
	}

	timings := make([]WordTiming, len(words))
	t := 0.0
	for i, w := range words {
		timings[i] = WordTiming{Word: w, Start: t, End: t + perWord}
		t += perWord
	}
	return timings
}

func splitWords(text string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// Validate checks that a configured batch size and crossfade are sane,
// mirroring the recognized-configuration bounds in spec §6.
func Validate(batchSize, crossfadeMs int) error {
	if batchSize <= 0 {
		return fmt.Errorf("tts.batch_size must be positive")
	}
	if crossfadeMs < 0 {
		return fmt.Errorf("tts.crossfade_ms must be non-negative")
	}
	return nil
}
