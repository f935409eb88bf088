package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsp "github.com/BackendStack21/qsp-go"
)

func TestHistogram(t *testing.T) {
	r := qsp.NewRaster(qsp.Shape{H: 2, W: 2, C: 3})
	r.Pix[0], r.Pix[5] = 7, 255
	h := Histogram(r)
	assert.Equal(t, 10, h[0])
	assert.Equal(t, 1, h[7])
	assert.Equal(t, 1, h[255])
}

func TestCompare(t *testing.T) {
	cover := qsp.NewRaster(qsp.Shape{H: 8, W: 8, C: 1})
	s, err := Compare("same", cover, cover.Clone())
	require.NoError(t, err)
	assert.True(t, math.IsInf(s.PSNR, 1))

	carrier := cover.Clone()
	carrier.Pix[3] = 10
	s, err = Compare("changed", cover, carrier)
	require.NoError(t, err)
	assert.Greater(t, s.PSNR, 0.0)
	assert.Equal(t, 1, s.StegoHist[10])

	_, err = Compare("bad", cover, qsp.NewRaster(qsp.Shape{H: 4, W: 4, C: 1}))
	assert.ErrorIs(t, err, qsp.ErrValidation)
}

func TestRender(t *testing.T) {
	cover := qsp.NewRaster(qsp.Shape{H: 8, W: 8, C: 3})
	carrier := cover.Clone()
	carrier.Pix[0] = 3
	a, err := Compare("locked_asset_1.png", cover, carrier)
	require.NoError(t, err)
	b, err := Compare("locked_asset_2.png", cover, cover)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, []CarrierStats{a, b}))
	html := buf.String()
	assert.Contains(t, html, "PSNR per carrier")
	assert.Contains(t, html, "locked_asset_1.png")
	assert.Contains(t, html, "locked_asset_2.png")

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, WriteFile(path, []CarrierStats{a}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.ErrorIs(t, WriteFile(filepath.Join(t.TempDir(), "no", "r.html"), nil), qsp.ErrIO)
}
