package processor

import (
	"context"
	"math"
	"sort"

	"github.com/cwbudde/algo-dsp/measure/loudness"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

// LoudnessStats is one measurement of a waveform.
// Integrated is -Inf for silence (nothing passes the absolute gate).
type LoudnessStats struct {
	Integrated   float64 // LUFS
	Range        float64 // LU
	TruePeak     float64 // dBTP
	Threshold    float64 // LUFS, relative gate
	TargetOffset float64 // dB, loudnorm's suggested offset for a linear pass
}

// IsSilent reports whether the measurement carries the silence sentinel.
// Gain stages must be skipped for silent input.
func (s LoudnessStats) IsSilent() bool {
	return math.IsInf(s.Integrated, -1) || math.IsNaN(s.Integrated)
}

// Meter measures loudness statistics of a waveform.
type Meter interface {
	Measure(ctx context.Context, w *audio.Waveform) (LoudnessStats, error)
}

// BS.1770 / EBU Tech 3342 gating constants.
const (
	blockSeconds     = 0.4
	stepSeconds      = 0.1
	shortTermSeconds = 3.0

	absoluteGateLUFS  = -70.0
	relativeGateLU    = -10.0
	lraRelativeGateLU = -20.0
	lraLowPercentile  = 0.10
	lraHighPercentile = 0.95
)

// InternalMeter measures in-process with the BS.1770 meter from algo-dsp.
// True peak is estimated from a 4x oversampled copy.
type InternalMeter struct{}

// Measure implements Meter.
func (InternalMeter) Measure(ctx context.Context, w *audio.Waveform) (LoudnessStats, error) {
	if err := w.Validate(); err != nil {
		return LoudnessStats{}, err
	}
	n := w.NumChannels()
	rate := float64(w.SampleRate)
	m := loudness.NewMeter(loudness.WithSampleRate(rate), loudness.WithChannels(n))

	frames := w.Frames()
	step := max(int(math.Round(stepSeconds*rate)), 1)
	shortTermFrames := int(math.Round(shortTermSeconds * rate))

	// Gating blocks are the 400 ms windows ending on each 100 ms boundary,
	// so integration starts one step before the first full window. Clips
	// shorter than a block are integrated from the first sample.
	startAt := int(math.Round(blockSeconds*rate)) - step
	if frames < startAt+step {
		startAt = 0
	}

	var shortTerm []float64
	frame := make([]float64, n)
	for i := 0; i < frames; i++ {
		if i%65536 == 0 && ctx.Err() != nil {
			return LoudnessStats{}, ctx.Err()
		}
		if i == startAt {
			m.StartIntegration()
		}
		for c := range n {
			frame[c] = w.Channels[c][i]
		}
		m.ProcessSample(frame)
		if done := i + 1; done >= shortTermFrames && done%step == 0 {
			shortTerm = append(shortTerm, m.ShortTerm())
		}
	}

	stats := LoudnessStats{
		Integrated: m.Integrated(),
		Range:      loudnessRange(shortTerm),
		Threshold:  absoluteGateLUFS,
	}
	if !stats.IsSilent() {
		stats.Threshold = stats.Integrated + relativeGateLU
	}

	peak, err := truePeak(w, meterOversample, false)
	if err != nil {
		return LoudnessStats{}, err
	}
	stats.TruePeak = audio.LinearToDB(peak)
	return stats, nil
}

// loudnessRange implements EBU Tech 3342: short-term values are gated at
// -70 LUFS, then 20 LU below their power mean, and the range is the spread
// between the 10th and 95th percentiles.
func loudnessRange(shortTerm []float64) float64 {
	gated := make([]float64, 0, len(shortTerm))
	var power float64
	for _, v := range shortTerm {
		if v > absoluteGateLUFS {
			gated = append(gated, v)
			power += math.Pow(10, v/10)
		}
	}
	if len(gated) < 2 {
		return 0
	}
	relGate := 10*math.Log10(power/float64(len(gated))) + lraRelativeGateLU

	kept := gated[:0]
	for _, v := range gated {
		if v > relGate {
			kept = append(kept, v)
		}
	}
	if len(kept) < 2 {
		return 0
	}
	sort.Float64s(kept)
	return percentile(kept, lraHighPercentile) - percentile(kept, lraLowPercentile)
}

// percentile interpolates linearly inside a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
