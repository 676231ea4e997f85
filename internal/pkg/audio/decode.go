package audio

import (
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

// Buffer is a decoded mono waveform. It lives only for one job's processing.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the decoded audio length
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

func decodeWAV(r io.ReadSeeker, targetRate int, maxDur time.Duration) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("can't read pcm data: %w", err)
	}
	if pcm.Format == nil || pcm.Format.SampleRate <= 0 || pcm.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("no audio format")
	}
	samples := toMonoFloat(pcm.Data, pcm.Format.NumChannels, int(d.BitDepth))
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio data")
	}
	samples = resample(samples, pcm.Format.SampleRate, targetRate)
	if maxLen := int(maxDur.Seconds() * float64(targetRate)); len(samples) > maxLen {
		samples = samples[:maxLen]
	}
	return &Buffer{Samples: samples, SampleRate: targetRate}, nil
}

func toMonoFloat(data []int, channels, bitDepth int) []float32 {
	if channels < 1 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	div := float32(int64(1) << (bitDepth - 1))
	res := make([]float32, 0, len(data)/channels)
	for i := 0; i+channels <= len(data); i += channels {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(data[i+c]) / div
		}
		res = append(res, sum/float32(channels))
	}
	return res
}

// resample does linear interpolation between neighbour samples
func resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := int(float64(len(in)) * float64(to) / float64(from))
	if n < 1 {
		n = 1
	}
	res := make([]float32, n)
	ratio := float64(from) / float64(to)
	for i := range res {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			res[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		res[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return res
}
