// Package spectrum computes frequency-domain snapshots of audio for
// the level visualization: a short FFT over the most recent samples,
// folded into a small number of bars.
package spectrum

import (
	"math"
	"sync"
)

// FFTSize is the analysis window length in samples. At 24kHz this is
// about 10ms of audio, enough for a responsive visualization.
const FFTSize = 256

// DefaultBars is the bar count produced by Snapshot.
const DefaultBars = 32

// Analyzer maintains a rolling window of recent samples and computes
// magnitude spectra on demand. Safe for one writer and any number of
// readers.
type Analyzer struct {
	mu     sync.Mutex
	window [FFTSize]float64 // ring of recent samples, normalized to [-1, 1]
	pos    int
	filled bool

	hann [FFTSize]float64
}

// NewAnalyzer creates an analyzer with a Hann window.
func NewAnalyzer() *Analyzer {
	a := &Analyzer{}
	for i := range a.hann {
		a.hann[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/float64(FFTSize)))
	}
	return a
}

// Push feeds PCM16 samples into the rolling window. Only the newest
// FFTSize samples are retained.
func (a *Analyzer) Push(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Only the tail can matter.
	if len(samples) > FFTSize {
		samples = samples[len(samples)-FFTSize:]
	}
	for _, s := range samples {
		a.window[a.pos] = float64(s) / 32768.0
		a.pos = (a.pos + 1) % FFTSize
		if a.pos == 0 {
			a.filled = true
		}
	}
}

// Magnitudes returns the FFTSize/2 magnitude bins of the current
// window, Hann-weighted, normalized so a full-scale sine lands near
// 1.0 in its bin.
func (a *Analyzer) Magnitudes() []float64 {
	re := make([]float64, FFTSize)
	im := make([]float64, FFTSize)

	a.mu.Lock()
	// Unroll the ring into time order before windowing.
	start := a.pos
	if !a.filled {
		start = 0
	}
	for i := 0; i < FFTSize; i++ {
		re[i] = a.window[(start+i)%FFTSize] * a.hann[i]
	}
	a.mu.Unlock()

	fft(re, im)

	mags := make([]float64, FFTSize/2)
	// Hann window halves the coherent gain; 4/N compensates both it
	// and the two-sided spectrum.
	scale := 4.0 / float64(FFTSize)
	for i := range mags {
		mags[i] = math.Hypot(re[i], im[i]) * scale
	}
	return mags
}

// Snapshot folds the magnitude spectrum into bars values in [0, 1],
// averaging adjacent bins. bars must be at most FFTSize/2; zero means
// DefaultBars.
func (a *Analyzer) Snapshot(bars int) []float64 {
	if bars <= 0 {
		bars = DefaultBars
	}
	mags := a.Magnitudes()
	if bars > len(mags) {
		bars = len(mags)
	}

	out := make([]float64, bars)
	per := len(mags) / bars
	for b := 0; b < bars; b++ {
		sum := 0.0
		for i := b * per; i < (b+1)*per; i++ {
			sum += mags[i]
		}
		v := sum / float64(per)
		if v > 1 {
			v = 1
		}
		out[b] = v
	}
	return out
}

// fft performs an in-place radix-2 Cooley-Tukey FFT.
// re and im must have the same power-of-2 length.
func fft(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	// Cooley-Tukey butterfly
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2.0 * math.Pi / float64(size)
		wR := math.Cos(angle)
		wI := math.Sin(angle)

		for start := 0; start < n; start += size {
			tR, tI := 1.0, 0.0
			for k := 0; k < half; k++ {
				u := start + k
				v := u + half

				tmpR := tR*re[v] - tI*im[v]
				tmpI := tR*im[v] + tI*re[v]

				re[v] = re[u] - tmpR
				im[v] = im[u] - tmpI
				re[u] += tmpR
				im[u] += tmpI

				tR, tI = tR*wR-tI*wI, tR*wI+tI*wR
			}
		}
	}
}
