package processor

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

// Adaptive threshold tuning.
const (
	// loudnessGapWeight scales how far the measured loudness sits from target.
	loudnessGapWeight = 0.3
	// silentEnvelope is the detector level below which gain is only makeup.
	silentEnvelope = 1e-12
)

// CompressionInfo records what the compressor stage did.
type CompressionInfo struct {
	Preset        CompressorPreset
	DynamicOffset float64 // dB
	ThresholdDB   float64
}

// AdaptiveThreshold places the compressor threshold relative to the measured
// loudness. Louder-than-target material gets a higher threshold:
//
//	offset    = (actual - target) × 0.3 + base_offset
//	threshold = actual + offset
func AdaptiveThreshold(actualLUFS, targetLUFS float64, p CompressorPreset) (threshold, offset float64) {
	offset = (actualLUFS-targetLUFS)*loudnessGapWeight + p.BaseOffset
	return actualLUFS + offset, offset
}

// Compress applies a downward compressor with peak detection and one linked
// envelope. The detector follows the channel average of |x|, and the gain it
// yields is applied identically to every channel so the stereo image holds.
// A ratio of exactly 1 returns an unmodified copy.
func Compress(w *audio.Waveform, thresholdDB float64, p CompressorPreset) (*audio.Waveform, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if p.Ratio == 1 {
		return w.Clone(), nil
	}

	comp, err := newGainComputer(float64(w.SampleRate), thresholdDB, p)
	if err != nil {
		return nil, err
	}
	makeup := audio.DBToLinear(p.MakeupDB)
	attack, release := envelopeCoefficients(float64(w.SampleRate), p.AttackMs, p.ReleaseMs)

	n := w.NumChannels()
	out := w.Clone()
	var env float64
	for i := range w.Frames() {
		var level float64
		for c := range n {
			level += math.Abs(w.Channels[c][i])
		}
		level /= float64(n)

		if level > env {
			env += (level - env) * attack
		} else {
			env = level + (env-level)*release
		}

		gain := makeup
		if env > silentEnvelope {
			gain = comp.CalculateOutputLevel(env) / env
		}
		for c := range n {
			out.Channels[c][i] *= gain
		}
	}
	return out, nil
}

// newGainComputer configures the algo-dsp compressor as a static gain curve.
// Its own per-sample envelope is not used; the linked envelope replaces it.
func newGainComputer(sampleRate, thresholdDB float64, p CompressorPreset) (*dynamics.Compressor, error) {
	comp, err := dynamics.NewCompressor(sampleRate)
	if err != nil {
		return nil, err
	}
	steps := []struct {
		name string
		set  func(float64) error
		v    float64
	}{
		{"threshold", comp.SetThreshold, thresholdDB},
		{"ratio", comp.SetRatio, p.Ratio},
		{"knee", comp.SetKnee, p.KneeDB},
		{"attack", comp.SetAttack, p.AttackMs},
		{"release", comp.SetRelease, p.ReleaseMs},
		{"makeup", comp.SetMakeupGain, p.MakeupDB},
	}
	for _, s := range steps {
		if err := s.set(s.v); err != nil {
			return nil, fmt.Errorf("compressor %s %.2f: %w", s.name, s.v, err)
		}
	}
	return comp, nil
}

// envelopeCoefficients matches the one-pole follower used by algo-dsp:
// the envelope moves halfway to the input in one attack (or release) time.
func envelopeCoefficients(sampleRate, attackMs, releaseMs float64) (attack, release float64) {
	attack = 1 - math.Exp(-math.Ln2/(attackMs*0.001*sampleRate))
	release = math.Exp(-math.Ln2 / (releaseMs * 0.001 * sampleRate))
	return attack, release
}
