// Package audio implements the audio assembler (spec §4.6): concatenating
// per-paragraph PCM chunks into one timeline with short crossfades,
// computing each chunk's cumulative offset, and exporting the result as
// MP3. Grounded on tts_service.py's combine_audio_chunks, which performs
// the equivalent operation with pydub's AudioSegment.append(crossfade=50)
// over ffmpeg.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
)

// BytesPerSample is fixed: 16-bit mono PCM throughout the pipeline.
const BytesPerSample = 2

// Chunk is one rendered paragraph: raw 16-bit little-endian mono PCM
// samples at SampleRateHz. A nil Samples slice represents a chunk whose
// file could not be loaded at combine time (spec §4.6's "skipped
// silently" failure mode).
type Chunk struct {
	Samples      []int16
	SampleRateHz int
}

// Duration returns the chunk's length in seconds.
func (c Chunk) Duration() float64 {
	if c.SampleRateHz == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRateHz)
}

// Silence returns a Chunk of pure silence, used to replace a paragraph
// whose TTS rendering failed (spec §4.6).
func Silence(seconds float64, sampleRateHz int) Chunk {
	n := int(seconds * float64(sampleRateHz))
	return Chunk{Samples: make([]int16, n), SampleRateHz: sampleRateHz}
}

// Offset is the cumulative position of one chunk in the assembled
// timeline.
type Offset struct {
	Start float64
	End   float64
}

// Combine concatenates chunks in order, linearly crossfading
// crossfadeMs of overlap between every pair of adjacent loaded chunks,
// and returns the combined PCM plus each input chunk's cumulative
// offset. Chunks with a nil Samples slice are skipped silently, and the
// timeline collapses accordingly (spec §4.6).
//
// Per spec §9's Open Question #1, this implementation picks ONE
// convention and applies it to both the audio and the transcript: the
// start of chunk k is the sum of durations of loaded chunks before it,
// minus crossfadeMs for every boundary crossed. internal/transcript
// reuses these same offsets rather than recomputing its own clock.
func Combine(chunks []Chunk, crossfadeMs int, sampleRateHz int) ([]int16, []Offset) {
	crossfadeSamples := int(float64(crossfadeMs) / 1000.0 * float64(sampleRateHz))

	var combined []int16
	offsets := make([]Offset, len(chunks))
	first := true

	for i, c := range chunks {
		if c.Samples == nil {
			// Unloadable chunk: no offset advance, timeline collapses
			// (the next loaded chunk starts where this one would have).
			if i > 0 {
				offsets[i] = offsets[i-1]
			}
			continue
		}

		if first {
			combined = append(combined, c.Samples...)
			first = false
		} else {
			combined = crossfadeAppend(combined, c.Samples, crossfadeSamples)
		}
		// The chunk occupies the last len(c.Samples) samples, so its start
		// already reflects the crossfade overlap with the previous chunk.
		start := float64(len(combined)-len(c.Samples)) / float64(sampleRateHz)
		end := float64(len(combined)) / float64(sampleRateHz)
		offsets[i] = Offset{Start: start, End: end}
	}
	return combined, offsets
}

// crossfadeAppend appends next to base, linearly blending the last n
// samples of base with the first n samples of next (n capped to both
// slices' lengths).
func crossfadeAppend(base, next []int16, n int) []int16 {
	if n <= 0 || len(base) == 0 || len(next) == 0 {
		return append(base, next...)
	}
	if n > len(base) {
		n = len(base)
	}
	if n > len(next) {
		n = len(next)
	}

	overlapStart := len(base) - n
	for i := 0; i < n; i++ {
		t := float64(i+1) / float64(n+1)
		fadedOut := float64(base[overlapStart+i]) * (1 - t)
		fadedIn := float64(next[i]) * t
		base[overlapStart+i] = int16(fadedOut + fadedIn)
	}
	return append(base, next[n:]...)
}

// WriteWAV encodes mono 16-bit PCM samples as a canonical WAV byte
// stream at sampleRateHz.
func WriteWAV(samples []int16, sampleRateHz int) []byte {
	dataSize := len(samples) * BytesPerSample
	byteRate := sampleRateHz * BytesPerSample

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRateHz))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(BytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// Encoder exports a WAV stream to MP3. FFmpegEncoder is the default
// implementation; tests substitute a stub.
type Encoder interface {
	EncodeMP3(wav []byte, bitrateKbps int) ([]byte, error)
}

// FFmpegEncoder shells out to the ffmpeg binary, matching the donor
// pipeline's reliance on pydub (itself an ffmpeg wrapper) for the final
// `.export(format="mp3", bitrate="128k")` step — no pure-Go MP3 encoder
// in the retrieved pack offers equivalent bitrate control.
type FFmpegEncoder struct {
	BinPath string
}

// NewFFmpegEncoder builds an Encoder that shells out to ffmpeg (or
// binPath, if set) on PATH.
func NewFFmpegEncoder(binPath string) *FFmpegEncoder {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegEncoder{BinPath: binPath}
}

// EncodeMP3 writes wav to a temp file, invokes ffmpeg to transcode it to
// MP3 at bitrateKbps, and returns the resulting bytes.
func (e *FFmpegEncoder) EncodeMP3(wav []byte, bitrateKbps int) ([]byte, error) {
	inFile, err := os.CreateTemp("", "newscast-episode-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(inFile.Name())
	if _, err := inFile.Write(wav); err != nil {
		inFile.Close()
		return nil, fmt.Errorf("write temp wav: %w", err)
	}
	inFile.Close()

	outPath := inFile.Name() + ".mp3"
	defer os.Remove(outPath)

	if bitrateKbps <= 0 {
		bitrateKbps = 128
	}

	cmd := exec.Command(e.BinPath,
		"-y",
		"-i", inFile.Name(),
		"-ac", "1",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode: %w: %s", err, string(out))
	}

	return os.ReadFile(outPath)
}
