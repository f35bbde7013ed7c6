package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Scratch files exchanged with ffmpeg are headerless interleaved float32
// little-endian ("-f f32le"), so values outside [-1, 1] survive a round trip.

// WriteF32LE writes the waveform as raw interleaved float32 samples.
func WriteF32LE(path string, w *Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	bw := bufio.NewWriterSize(f, 1<<16)

	n := w.NumChannels()
	frames := w.Frames()
	var b [4]byte
	for i := 0; i < frames; i++ {
		for c := 0; c < n; c++ {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(w.Channels[c][i])))
			if _, err := bw.Write(b[:]); err != nil {
				f.Close()
				return fmt.Errorf("failed to write scratch file: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write scratch file: %w", err)
	}
	return f.Close()
}

// ReadF32LE reads raw interleaved float32 samples back into a waveform.
func ReadF32LE(path string, channels, sampleRate int) (*Waveform, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch file: %w", err)
	}
	defer f.Close()

	var data []float64
	if st, err := f.Stat(); err == nil {
		data = make([]float64, 0, st.Size()/4)
	}

	br := bufio.NewReaderSize(f, 1<<16)
	var b [4]byte
	for {
		if _, err := io.ReadFull(br, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("failed to read scratch file: %w", err)
		}
		data = append(data, float64(math.Float32frombits(binary.LittleEndian.Uint32(b[:]))))
	}
	if len(data) < channels {
		return nil, fmt.Errorf("%w: %s holds no complete frame", ErrEmptyWaveform, path)
	}
	return Deinterleave(data, channels, sampleRate), nil
}
