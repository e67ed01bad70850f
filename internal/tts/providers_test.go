package tts

import (
	"encoding/binary"
	"testing"

	"newscast/internal/audio"
)

func TestDecodeWAVRoundTrip(t *testing.T) {
	samples := []int16{100, -200, 300, -400}
	wav := audio.WriteWAV(samples, 22050)

	decoded, rate := decodeWAV(wav)

	if rate != 22050 {
		t.Errorf("expected sample rate 22050, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d: want %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestDecodeWAVRejectsNonWAV(t *testing.T) {
	samples, rate := decodeWAV([]byte("not a wav file at all"))
	if samples != nil || rate != 0 {
		t.Errorf("expected zero value for non-WAV input, got samples=%v rate=%d", samples, rate)
	}
}

func TestGroupCharactersToWordsSplitsOnWhitespace(t *testing.T) {
	chars := []string{"h", "i", " ", "t", "h", "e", "r", "e"}
	starts := []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	ends := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}

	words := groupCharactersToWords(chars, starts, ends)

	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d: %+v", len(words), words)
	}
	if words[0].Word != "hi" || words[1].Word != "there" {
		t.Errorf("unexpected word text: %+v", words)
	}
	if words[0].Start != 0.0 {
		t.Errorf("expected first word to start at 0.0, got %v", words[0].Start)
	}
	if words[1].Start != 0.3 {
		t.Errorf("expected second word to start at 0.3, got %v", words[1].Start)
	}
}

func TestMockProviderReturnsSilenceSizedToWordCount(t *testing.T) {
	p := MockProvider{SampleRateHz: 1000}

	chunk, words, err := p.Synthesize(nil, "five simple test words here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if words != nil {
		t.Errorf("expected MockProvider to omit word timings, got %v", words)
	}
	wantDuration := 5.0 / UniformWordsPerSecond
	if diff := chunk.Duration() - wantDuration; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected duration ~%v, got %v", wantDuration, chunk.Duration())
	}
}
