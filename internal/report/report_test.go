package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func testEstimates(n int) []imu.Estimate {
	out := make([]imu.Estimate, n)
	for i := range out {
		v := float64(i) / float64(n)
		out[i] = imu.Estimate{
			Seq:            uint64(i),
			TimestampNanos: 1_000_000_000 + int64(i)*1_000_000,
			Angle:          [3]float64{v, -v, 0.5 * v},
			Rate:           [3]float64{1, 2, 3},
			Raw: imu.Sample{
				Angle: [3]float64{v + 0.01, -v - 0.01, 0.5 * v},
				Rate:  [3]float64{1.1, 1.9, 3},
			},
		}
	}
	return out
}

func TestStride(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, stride(10, 0))
	assert.Equal(t, 1, stride(10, 10))
	assert.Equal(t, 2, stride(11, 10))
	assert.Equal(t, 3, stride(25, 10))
}

func TestKind(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "angle", KindAngle.String())
	assert.Equal(t, "rate", KindRate.String())

	e := testEstimates(2)[1]
	raw, filtered := KindRate.values(e)
	assert.Equal(t, e.Raw.Rate, raw)
	assert.Equal(t, e.Rate, filtered)
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, "bench run", testEstimates(200), 50))

	html := buf.String()
	assert.Contains(t, html, "<html>")
	assert.Contains(t, html, "bench run")
	assert.Contains(t, html, "filtered x")
	assert.Contains(t, html, "raw z")
	assert.Contains(t, html, "stride=4")
	assert.True(t, strings.Contains(html, EChartsAssetsHost))
}

func TestRenderHTMLEmpty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.Error(t, RenderHTML(&buf, "empty", nil, 0))
}

func TestWritePNG(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, "bench run", KindAngle, testEstimates(100)))
	require.Greater(t, buf.Len(), len(pngSignature))
	assert.Equal(t, pngSignature, buf.Bytes()[:len(pngSignature)])
}

func TestSavePlots(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "plots")
	paths, err := SavePlots(dir, "run1", "bench run", testEstimates(100))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "run1_angle.png"),
		filepath.Join(dir, "run1_rate.png"),
	}, paths)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, pngSignature, data[:len(pngSignature)])
	}

	_, err = SavePlots(dir, "none", "empty", nil)
	require.Error(t, err)
}
