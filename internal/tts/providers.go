package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"newscast/internal/audio"
)

// GoogleProvider renders speech through Google Cloud Text-to-Speech,
// grounded on the podcaster reference project's use of the same
// package (the donor's own generateGoogleAudio was an unimplemented
// stub — spec §4.6 names Google TTS as a first-class provider option).
// The API does not return word-level timestamps, so Synthesize always
// returns a nil timing slice and the uniform fallback applies.
type GoogleProvider struct {
	client       *texttospeech.Client
	voiceName    string
	languageCode string
	sampleRateHz int32
}

// NewGoogleProvider builds a GoogleProvider over an authenticated
// client (credentials resolved the usual Application Default
// Credentials way, outside this package's concern).
func NewGoogleProvider(ctx context.Context, voiceName, languageCode string, sampleRateHz int32) (*GoogleProvider, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("new texttospeech client: %w", err)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	if sampleRateHz == 0 {
		sampleRateHz = 24000
	}
	return &GoogleProvider{client: client, voiceName: voiceName, languageCode: languageCode, sampleRateHz: sampleRateHz}, nil
}

// Synthesize implements Provider.
func (g *GoogleProvider) Synthesize(ctx context.Context, text string) (audio.Chunk, []WordTiming, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.languageCode,
			Name:         g.voiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: g.sampleRateHz,
		},
	}

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return audio.Chunk{}, nil, fmt.Errorf("synthesize speech: %w", err)
	}

	samples, rate := decodeWAV(resp.AudioContent)
	if rate == 0 {
		rate = int(g.sampleRateHz)
	}
	return audio.Chunk{Samples: samples, SampleRateHz: rate}, nil, nil
}

// decodeWAV strips a canonical 44-byte WAV header (Google's LINEAR16
// response wraps the PCM in one) and returns the 16-bit samples plus
// the declared sample rate.
func decodeWAV(b []byte) ([]int16, int) {
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, 0
	}
	rate := int(binary.LittleEndian.Uint32(b[24:28]))
	data := b[44:]
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples, rate
}

// ElevenLabsProvider renders speech through ElevenLabs' timestamped
// synthesis endpoint, grounded on the donor's ElevenLabsTTSRequest
// shape and original_source's DeepInfra "return_timestamps" handling
// (the closest analogue for per-word timing in the retrieved pack).
type ElevenLabsProvider struct {
	apiKey     string
	voiceID    string
	httpClient *http.Client
	sampleRate int
}

// NewElevenLabsProvider builds an ElevenLabsProvider.
func NewElevenLabsProvider(apiKey, voiceID string) *ElevenLabsProvider {
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM" // donor's default Rachel voice
	}
	return &ElevenLabsProvider{
		apiKey:     apiKey,
		voiceID:    voiceID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sampleRate: 44100,
	}
}

type elevenLabsTimestampResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   struct {
		Characters          []string  `json:"characters"`
		CharacterStartTimes []float64 `json:"character_start_times_seconds"`
		CharacterEndTimes   []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

// Synthesize implements Provider, grouping character-level alignment
// into word-level timings on whitespace boundaries.
func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string) (audio.Chunk, []WordTiming, error) {
	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s/with-timestamps", e.voiceID)
	body, _ := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_monolingual_v1",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return audio.Chunk{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return audio.Chunk{}, nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return audio.Chunk{}, nil, fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, string(b))
	}

	var parsed elevenLabsTimestampResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return audio.Chunk{}, nil, fmt.Errorf("decode elevenlabs response: %w", err)
	}

	mp3, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return audio.Chunk{}, nil, fmt.Errorf("decode audio_base64: %w", err)
	}

	samples, rate, err := decodeMP3ToPCM(mp3)
	if err != nil {
		return audio.Chunk{}, nil, fmt.Errorf("decode elevenlabs mp3: %w", err)
	}
	if rate == 0 {
		rate = e.sampleRate
	}

	words := groupCharactersToWords(parsed.Alignment.Characters, parsed.Alignment.CharacterStartTimes, parsed.Alignment.CharacterEndTimes)
	return audio.Chunk{Samples: samples, SampleRateHz: rate}, words, nil
}

// decodeMP3ToPCM shells out to ffmpeg to transcode ElevenLabs' MP3
// response into mono 16-bit PCM, mirroring internal/audio.FFmpegEncoder's
// temp-file-in/temp-file-out shape for the reverse direction.
func decodeMP3ToPCM(mp3 []byte) ([]int16, int, error) {
	inFile, err := os.CreateTemp("", "newscast-elevenlabs-*.mp3")
	if err != nil {
		return nil, 0, fmt.Errorf("create temp mp3: %w", err)
	}
	defer os.Remove(inFile.Name())
	if _, err := inFile.Write(mp3); err != nil {
		inFile.Close()
		return nil, 0, fmt.Errorf("write temp mp3: %w", err)
	}
	inFile.Close()

	outPath := inFile.Name() + ".wav"
	defer os.Remove(outPath)

	cmd := exec.Command("ffmpeg", "-y", "-i", inFile.Name(), "-ac", "1", "-f", "wav", outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, 0, fmt.Errorf("ffmpeg decode: %w: %s", err, string(out))
	}

	wavBytes, err := os.ReadFile(outPath)
	if err != nil {
		return nil, 0, fmt.Errorf("read decoded wav: %w", err)
	}
	samples, rate := decodeWAV(wavBytes)
	return samples, rate, nil
}

// groupCharactersToWords merges ElevenLabs' per-character alignment into
// per-word timing on whitespace boundaries, mirroring
// transcript_service.py's word-to-sentence grouping one level down.
func groupCharactersToWords(chars []string, starts, ends []float64) []WordTiming {
	var words []WordTiming
	var cur strings.Builder
	var wordStart float64
	open := false

	flush := func(end float64) {
		if cur.Len() > 0 {
			words = append(words, WordTiming{Word: cur.String(), Start: wordStart, End: end})
			cur.Reset()
		}
		open = false
	}

	for i, c := range chars {
		if c == " " || c == "\n" || c == "\t" {
			if i < len(ends) {
				flush(ends[i])
			} else {
				flush(wordStart)
			}
			continue
		}
		if !open {
			if i < len(starts) {
				wordStart = starts[i]
			}
			open = true
		}
		cur.WriteString(c)
	}
	if cur.Len() > 0 && len(ends) > 0 {
		flush(ends[len(ends)-1])
	}
	return words
}

// MockProvider generates deterministic silence sized to the uniform
// word rate, for tests and local development without provider
// credentials (mirrors the donor's ProviderMock).
type MockProvider struct {
	SampleRateHz int
}

// Synthesize implements Provider by returning silence of the expected
// duration with no word timings (forcing the uniform fallback).
func (m MockProvider) Synthesize(ctx context.Context, text string) (audio.Chunk, []WordTiming, error) {
	rate := m.SampleRateHz
	if rate == 0 {
		rate = 24000
	}
	wordCount := len(splitWords(text))
	duration := float64(wordCount) / UniformWordsPerSecond
	if duration <= 0 {
		duration = 0.5
	}
	return audio.Silence(duration, rate), nil, nil
}
