package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/trace"
)

func TestGenerate(t *testing.T) {
	opts := options{
		Signal: "constant", Samples: 50, TickPeriod: 0.002, Amplitude: 0.25,
		AngleNoise: 0.01, RateNoise: 0.02, Seed: 4, Start: time.Unix(10, 0),
	}
	var out, truth bytes.Buffer
	n, err := generate(opts, &out, &truth)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	samples, err := trace.ReadSamples(&out)
	require.NoError(t, err)
	require.Len(t, samples, 50)
	assert.Equal(t, time.Unix(10, 0).UnixNano()+2_000_000, samples[1].TimestampNanos)

	ests, err := trace.ReadEstimates(&truth)
	require.NoError(t, err)
	require.Len(t, ests, 50)
	assert.Equal(t, [3]float64{0.25, 0.25, 0.25}, ests[7].Angle)
	assert.Equal(t, samples[7], ests[7].Raw)
}

func TestGenerateDeterministic(t *testing.T) {
	opts := options{Signal: "sine", Samples: 20, TickPeriod: 0.001, Amplitude: 0.1, FreqHz: 2, AngleNoise: 0.01, RateNoise: 0.01, Seed: 9}
	var a, b bytes.Buffer
	_, err := generate(opts, &a, nil)
	require.NoError(t, err)
	_, err = generate(opts, &b, nil)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestGenerateErrors(t *testing.T) {
	var out bytes.Buffer
	_, err := generate(options{Signal: "square", Samples: 1, TickPeriod: 0.001}, &out, nil)
	assert.Error(t, err)
	_, err = generate(options{Signal: "sine", Samples: 0, TickPeriod: 0.001}, &out, nil)
	assert.Error(t, err)
	_, err = generate(options{Signal: "sine", Samples: 1, TickPeriod: 0}, &out, nil)
	assert.Error(t, err)
}
