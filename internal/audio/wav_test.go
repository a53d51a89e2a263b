package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-tacotron2/internal/testutil"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := testutil.Sine(440, 16000, 1600)

	data, err := EncodeWAV(samples, 16000, 16)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	testutil.AssertValidWAV(t, data, 16000)
	testutil.AssertWAVDurationApprox(t, data, 16000, 0.099, 0.101)

	got, f, err := DecodeWAV(data, Format{SampleRate: 16000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if f != (Format{SampleRate: 16000, Channels: 1, BitDepth: 16}) {
		t.Fatalf("format = %+v", f)
	}

	if len(got) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(samples))
	}

	for i := range got {
		if math.Abs(float64(got[i]-samples[i])) > 1e-3 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], samples[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	data, err := EncodeWAV(testutil.Sine(440, 22050, 100), 22050, 16)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		data     []byte
		want     Format
		mismatch bool
	}{
		{name: "empty", data: nil},
		{name: "garbage", data: []byte("not a wav file at all")},
		{name: "sample rate", data: data, want: Format{SampleRate: 24000}, mismatch: true},
		{name: "channels", data: data, want: Format{Channels: 2}, mismatch: true},
		{name: "bit depth", data: data, want: Format{BitDepth: 24}, mismatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tt.data, tt.want)
			if err == nil {
				t.Fatal("expected error")
			}

			if got := errors.Is(err, ErrFormatMismatch); got != tt.mismatch {
				t.Fatalf("errors.Is(ErrFormatMismatch) = %v, want %v (%v)", got, tt.mismatch, err)
			}
		})
	}
}

func TestReadWAVFile(t *testing.T) {
	data, err := EncodeWAV(testutil.Sine(220, 22050, 512), 22050, 16)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	samples, f, err := ReadWAVFile(path, Format{})
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}

	if len(samples) != 512 || f.SampleRate != 22050 {
		t.Fatalf("got %d samples at %d Hz", len(samples), f.SampleRate)
	}

	if _, _, err := ReadWAVFile(filepath.Join(t.TempDir(), "missing.wav"), Format{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDownmix(t *testing.T) {
	got := Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Downmix = %v, want %v", got, want)
		}
	}
}

func TestSeekBuffer(t *testing.T) {
	var sb seekBuffer

	_, _ = sb.Write([]byte("abcdef"))
	if _, err := sb.Seek(2, 0); err != nil {
		t.Fatal(err)
	}

	_, _ = sb.Write([]byte("XYZW"))
	if string(sb.data) != "abXYZW" {
		t.Fatalf("data = %q", sb.data)
	}

	if _, err := sb.Seek(-1, 0); err == nil {
		t.Fatal("expected error seeking before start")
	}
}
