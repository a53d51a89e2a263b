package audio

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// MelConfig describes mel-spectrogram extraction.
type MelConfig struct {
	SampleRate  int     `mapstructure:"sample_rate"`
	NFFT        int     `mapstructure:"n_fft"`
	HopLength   int     `mapstructure:"hop_length"`
	WinLength   int     `mapstructure:"win_length"`
	NumMels     int     `mapstructure:"num_mels"`
	FMin        float64 `mapstructure:"fmin"`
	FMax        float64 `mapstructure:"fmax"`
	PreEmphasis float64 `mapstructure:"preemphasis"`
	MinLevelDB  float64 `mapstructure:"min_level_db"`
	RefLevelDB  float64 `mapstructure:"ref_level_db"`
	// DCBlock and PeakNormalize condition the waveform before the STFT.
	DCBlock       bool `mapstructure:"dc_block"`
	PeakNormalize bool `mapstructure:"peak_normalize"`
}

// DefaultMelConfig matches the LJSpeech preprocessing the model is trained on.
func DefaultMelConfig() MelConfig {
	return MelConfig{
		SampleRate:  22050,
		NFFT:        1024,
		HopLength:   256,
		WinLength:   1024,
		NumMels:     80,
		FMin:        0,
		FMax:        8000,
		PreEmphasis: 0.97,
		MinLevelDB:  -100,
		RefLevelDB:  20,
	}
}

func (c MelConfig) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("audio: sample rate must be > 0, got %d", c.SampleRate)
	case c.NFFT <= 0 || c.HopLength <= 0 || c.NumMels <= 0:
		return fmt.Errorf("audio: n_fft, hop_length and num_mels must be > 0, got %d, %d, %d", c.NFFT, c.HopLength, c.NumMels)
	case c.WinLength <= 0 || c.WinLength > c.NFFT:
		return fmt.Errorf("audio: win_length %d must be in [1, n_fft=%d]", c.WinLength, c.NFFT)
	case c.FMin < 0 || c.FMax <= c.FMin || c.FMax > float64(c.SampleRate)/2:
		return fmt.Errorf("audio: invalid mel band [%g, %g] for sample rate %d", c.FMin, c.FMax, c.SampleRate)
	case c.MinLevelDB >= 0:
		return fmt.Errorf("audio: min_level_db must be < 0, got %g", c.MinLevelDB)
	}

	return nil
}

// MelExtractor computes normalized log-mel spectrograms. It holds FFT
// scratch space and is not safe for concurrent use.
type MelExtractor struct {
	cfg    MelConfig
	window []float64
	bank   [][]float64 // [num_mels][n_fft/2+1]
	fft    *fourier.FFT
	frame  []float64
	coeffs []complex128
}

// NewMelExtractor precomputes the window and filterbank for cfg.
func NewMelExtractor(cfg MelConfig) (*MelExtractor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &MelExtractor{
		cfg:    cfg,
		window: hannWindow(cfg.WinLength, cfg.NFFT),
		bank:   MelFilterbank(cfg.SampleRate, cfg.NFFT, cfg.NumMels, cfg.FMin, cfg.FMax),
		fft:    fourier.NewFFT(cfg.NFFT),
		frame:  make([]float64, cfg.NFFT),
		coeffs: make([]complex128, cfg.NFFT/2+1),
	}, nil
}

// Hooks returns the waveform conditioning enabled in the config, in the
// order Extract applies them.
func (c MelConfig) Hooks() []Hook {
	var hooks []Hook

	if c.DCBlock {
		sr := c.SampleRate
		hooks = append(hooks, func(x []float32) []float32 { return DCBlock(x, sr) })
	}

	if c.PeakNormalize {
		hooks = append(hooks, PeakNormalize)
	}

	return hooks
}

// Config returns the extraction parameters.
func (e *MelExtractor) Config() MelConfig { return e.cfg }

// Frames is the number of STFT frames for n samples.
func (e *MelExtractor) Frames(n int) int {
	return 1 + n/e.cfg.HopLength
}

// Extract returns the mel-spectrogram of mono samples as [num_mels][frames],
// scaled to [0, 1].
func (e *MelExtractor) Extract(samples []float32) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, errors.New("audio: no samples")
	}

	x := ApplyHooks(samples, e.cfg.Hooks()...)
	x = PreEmphasis(x, float32(e.cfg.PreEmphasis))
	padded := reflectPad(x, e.cfg.NFFT/2)
	frames := e.Frames(len(samples))

	mel := make([][]float32, e.cfg.NumMels)
	for m := range mel {
		mel[m] = make([]float32, frames)
	}

	mag := make([]float64, e.cfg.NFFT/2+1)

	for f := range frames {
		start := f * e.cfg.HopLength
		for i := range e.frame {
			e.frame[i] = float64(padded[start+i]) * e.window[i]
		}

		e.coeffs = e.fft.Coefficients(e.coeffs, e.frame)
		for k, c := range e.coeffs {
			mag[k] = cmplx.Abs(c)
		}

		for m, filter := range e.bank {
			var energy float64
			for k, w := range filter {
				energy += w * mag[k]
			}

			db := 20*math.Log10(max(energy, 1e-5)) - e.cfg.RefLevelDB
			norm := (db - e.cfg.MinLevelDB) / -e.cfg.MinLevelDB
			mel[m][f] = float32(min(max(norm, 0), 1))
		}
	}

	return mel, nil
}

// Tensor extracts the mel-spectrogram as a [1, num_mels, T] tensor with T
// zero-padded up to a multiple of framesPerStep.
func (e *MelExtractor) Tensor(samples []float32, framesPerStep int) (*tensor.Tensor, error) {
	mel, err := e.Extract(samples)
	if err != nil {
		return nil, err
	}

	return MelToTensor(mel, framesPerStep)
}

// MelToTensor packs [num_mels][frames] into [1, num_mels, T], padding T with
// zeros to a multiple of framesPerStep.
func MelToTensor(mel [][]float32, framesPerStep int) (*tensor.Tensor, error) {
	if len(mel) == 0 {
		return nil, errors.New("audio: empty mel-spectrogram")
	}

	frames := len(mel[0])
	if framesPerStep > 1 && frames%framesPerStep != 0 {
		frames += framesPerStep - frames%framesPerStep
	}

	data := make([]float32, len(mel)*frames)
	for m, row := range mel {
		copy(data[m*frames:], row)
	}

	return tensor.New(data, []int64{1, int64(len(mel)), int64(frames)})
}

// hannWindow is a periodic Hann window of winLength, centred in nfft.
func hannWindow(winLength, nfft int) []float64 {
	w := make([]float64, nfft)
	offset := (nfft - winLength) / 2

	for n := range winLength {
		w[offset+n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(winLength))
	}

	return w
}

// reflectPad mirrors pad samples at each end without repeating the edge.
// Signals shorter than pad+1 are zero-padded instead.
func reflectPad(x []float32, pad int) []float32 {
	out := make([]float32, len(x)+2*pad)
	copy(out[pad:], x)

	if len(x) <= pad {
		return out
	}

	for i := range pad {
		out[pad-1-i] = x[i+1]
		out[pad+len(x)+i] = x[len(x)-2-i]
	}

	return out
}

// MelFilterbank builds Slaney-normalized triangular filters on the Slaney
// mel scale, shape [numMels][nfft/2+1].
func MelFilterbank(sampleRate, nfft, numMels int, fmin, fmax float64) [][]float64 {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)

	for k := range bins {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	lo, hi := HzToMel(fmin), HzToMel(fmax)
	points := make([]float64, numMels+2)

	for i := range points {
		points[i] = MelToHz(lo + (hi-lo)*float64(i)/float64(numMels+1))
	}

	bank := make([][]float64, numMels)

	for m := range bank {
		left, center, right := points[m], points[m+1], points[m+2]
		norm := 2 / (right - left)
		row := make([]float64, bins)

		for k, f := range fftFreqs {
			up := (f - left) / (center - left)
			down := (right - f) / (right - center)
			row[k] = max(0, min(up, down)) * norm
		}

		bank[m] = row
	}

	return bank
}

const (
	melFSp      = 200.0 / 3
	melMinLogHz = 1000.0
	melMinLog   = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27

// HzToMel converts frequency to the Slaney mel scale: linear below 1 kHz,
// logarithmic above.
func HzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSp
	}

	return melMinLog + math.Log(hz/melMinLogHz)/melLogStep
}

// MelToHz inverts HzToMel.
func MelToHz(mel float64) float64 {
	if mel < melMinLog {
		return mel * melFSp
	}

	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLog))
}
