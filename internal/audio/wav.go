// Package audio reads reference recordings and turns them into the
// mel-spectrogram targets the acoustic model is teacher-forced against.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// ErrFormatMismatch is returned when a decoded WAV does not match the
// requested format.
var ErrFormatMismatch = errors.New("audio: WAV format mismatch")

// Format describes PCM audio. Zero fields in a requested format match
// anything.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DecodeWAV decodes WAV bytes into float32 samples in [-1, 1], downmixed to
// mono, and reports the stored format.
func DecodeWAV(data []byte, want Format) ([]float32, Format, error) {
	if len(data) == 0 {
		return nil, Format{}, errors.New("audio: empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("audio: invalid WAV file")
	}

	got := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: int(dec.BitDepth)}

	if want.SampleRate != 0 && got.SampleRate != want.SampleRate {
		return nil, got, fmt.Errorf("%w: sample rate %d, want %d", ErrFormatMismatch, got.SampleRate, want.SampleRate)
	}

	if want.Channels != 0 && got.Channels != want.Channels {
		return nil, got, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, got.Channels, want.Channels)
	}

	if want.BitDepth != 0 && got.BitDepth != want.BitDepth {
		return nil, got, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, got.BitDepth, want.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, got, fmt.Errorf("audio: reading PCM data: %w", err)
	}

	return Downmix(buf.Data, got.Channels), got, nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string, want Format) ([]float32, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: %w", err)
	}

	samples, f, err := DecodeWAV(data, want)
	if err != nil {
		return nil, f, fmt.Errorf("%s: %w", path, err)
	}

	return samples, f, nil
}

// Downmix averages interleaved channels into one.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}

		out[i] = sum / float32(channels)
	}

	return out
}

// EncodeWAV encodes mono float32 samples as PCM WAV at the given rate and
// bit depth.
func EncodeWAV(samples []float32, sampleRate, bitDepth int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	var sb seekBuffer

	enc := wav.NewEncoder(&sb, sampleRate, bitDepth, 1, 1) // format 1 = PCM

	pcm := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(pcm); err != nil {
		return nil, fmt.Errorf("audio: writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: closing encoder: %w", err)
	}

	return sb.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}

	n := copy(s.data[s.pos:], p)
	s.pos += n

	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(s.pos) + offset
	case io.SeekEnd:
		pos = int64(len(s.data)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}

	if pos < 0 {
		return 0, errors.New("audio: seek before start")
	}

	s.pos = int(pos)

	return pos, nil
}
