package stego

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
	"github.com/BackendStack21/qsp-go/utils"
)

func defaultCodec(t *testing.T) *Codec {
	t.Helper()
	cd, err := NewCodec(core.DefaultParams.Stego)
	require.NoError(t, err)
	return cd
}

// gradientCover is a smooth cover with mild noise, like a photograph.
func gradientCover(t *testing.T, h, w, c int) *qsp.Raster {
	t.Helper()
	r := qsp.NewRaster(qsp.Shape{H: h, W: w, C: c})
	noise, err := utils.SecureRandomBytes(len(r.Pix))
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				v := (x*200/w + y*50/h + ch*3) + int(noise[r.Offset(y, x, ch)]%7) - 3
				r.Set(y, x, ch, uint8(min(255, max(0, v))))
			}
		}
	}
	return r
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b, err := utils.SecureRandomBytes(n)
	require.NoError(t, err)
	return b
}

func TestZigZag(t *testing.T) {
	u, v, err := ZigZag(14)
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 4}, [2]int{u, v})

	u, v, err = ZigZag(11)
	require.NoError(t, err)
	assert.Equal(t, [2]int{3, 1}, [2]int{u, v})

	seen := map[[2]int]bool{}
	for _, rc := range ZigZagOrder {
		assert.False(t, seen[rc], "duplicate coordinate %v", rc)
		seen[rc] = true
	}
	assert.Len(t, seen, 64)

	_, _, err = ZigZag(64)
	assert.ErrorIs(t, err, qsp.ErrValidation)
	_, _, err = ZigZag(-1)
	assert.Error(t, err)
}

func TestDCTRoundTrip(t *testing.T) {
	block := make([]float64, 64)
	for i := range block {
		block[i] = float64((i * 37) % 256)
	}
	back := IDCT2(DCT2(block))
	for i := range block {
		assert.InDelta(t, block[i], back[i], 1e-9)
	}

	flat := make([]float64, 64)
	for i := range flat {
		flat[i] = 10
	}
	coef := DCT2(flat)
	assert.InDelta(t, 80, coef[0], 1e-9)
	for _, c := range coef[1:] {
		assert.InDelta(t, 0, c, 1e-9)
	}
}

// "hello" survives a 256x256 all-zero cover.
func TestHelloInBlackCover(t *testing.T) {
	cd := defaultCodec(t)
	cover := qsp.NewRaster(qsp.Shape{H: 256, W: 256, C: 3})

	stego, err := cd.Embed(cover, []byte("hello"))
	require.NoError(t, err)
	got, err := cd.Extract(stego)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	for _, p := range cover.Pix {
		require.Zero(t, p, "Embed modified the cover")
	}
}

func TestRoundTrip(t *testing.T) {
	cover := gradientCover(t, 128, 96, 3)
	capacity := MaxPayload(cover.Shape)
	payloads := map[string][]byte{
		"empty":  {},
		"one":    {0xA5},
		"random": randomBytes(t, 40),
		"full":   randomBytes(t, capacity),
	}
	for _, strength := range []int{core.MinStrength, 25, core.MaxStrength} {
		cd, err := NewCodec(qsp.StegoParams{Strength: strength, CoeffIndex: 14})
		require.NoError(t, err)
		for name, payload := range payloads {
			stego, err := cd.Embed(cover, payload)
			require.NoError(t, err, "%s at k=%d", name, strength)
			got, err := cd.Extract(stego)
			require.NoError(t, err, "%s at k=%d", name, strength)
			assert.True(t, bytes.Equal(payload, got), "%s at k=%d", name, strength)
		}
	}
}

func TestExtremeCovers(t *testing.T) {
	cd := defaultCodec(t)
	payload := randomBytes(t, 16)
	for _, fill := range []uint8{0, 1, 128, 254, 255} {
		cover := qsp.NewRaster(qsp.Shape{H: 64, W: 64, C: 3})
		for i := range cover.Pix {
			cover.Pix[i] = fill
		}
		stego, err := cd.Embed(cover, payload)
		require.NoError(t, err, "fill %d", fill)
		got, err := cd.Extract(stego)
		require.NoError(t, err, "fill %d", fill)
		assert.Equal(t, payload, got, "fill %d", fill)
	}
}

func TestOtherCoefficients(t *testing.T) {
	cover := gradientCover(t, 128, 128, 1) // 256 bits
	payload := []byte("coefficient")
	require.LessOrEqual(t, 8*(4+len(payload)), Capacity(cover.Shape))
	for _, idx := range []int{1, 5, 20, 35, 63} {
		cd, err := NewCodec(qsp.StegoParams{Strength: 25, CoeffIndex: idx})
		require.NoError(t, err)
		stego, err := cd.Embed(cover, payload)
		require.NoError(t, err, "index %d", idx)
		got, err := cd.Extract(stego)
		require.NoError(t, err, "index %d", idx)
		assert.Equal(t, payload, got, "index %d", idx)
	}
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 32*32*3, Capacity(qsp.Shape{H: 256, W: 256, C: 3}))
	assert.Equal(t, 1*2*1, Capacity(qsp.Shape{H: 15, W: 17, C: 1}))
	assert.Equal(t, 0, MaxPayload(qsp.Shape{H: 8, W: 8, C: 1}))

	cd := defaultCodec(t)
	cover := gradientCover(t, 64, 64, 1) // 64 bits: header + 4 bytes
	_, err := cd.Embed(cover, make([]byte, 5))
	assert.ErrorIs(t, err, ErrCapacity)
	assert.ErrorIs(t, err, qsp.ErrValidation)

	_, err = cd.Embed(cover, make([]byte, 4))
	assert.NoError(t, err)

	_, err = cd.Extract(qsp.NewRaster(qsp.Shape{H: 8, W: 8, C: 3}))
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestExtractRejectsOversizedHeader(t *testing.T) {
	cd := defaultCodec(t)
	stego, err := cd.Embed(gradientCover(t, 64, 64, 3), nil)
	require.NoError(t, err)

	// Setting the first header bit announces a 2 GiB payload.
	require.NoError(t, cd.embedBit(newTransformer(), stego, 0, 0, 0, true))
	_, err = cd.Extract(stego)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestNewCodecValidation(t *testing.T) {
	bad := []qsp.StegoParams{
		{Strength: core.MinStrength - 1, CoeffIndex: 14},
		{Strength: core.MaxStrength + 1, CoeffIndex: 14},
		{Strength: 25, CoeffIndex: 0},
		{Strength: 25, CoeffIndex: 64},
	}
	for _, p := range bad {
		_, err := NewCodec(p)
		assert.True(t, errors.Is(err, qsp.ErrValidation), "%+v", p)
	}
}

func TestPSNR(t *testing.T) {
	cd := defaultCodec(t)
	cover := gradientCover(t, 128, 128, 3)

	same, err := PSNR(cover, cover.Clone())
	require.NoError(t, err)
	assert.True(t, math.IsInf(same, 1))

	stego, err := cd.Embed(cover, randomBytes(t, 64))
	require.NoError(t, err)
	psnr, err := PSNR(cover, stego)
	require.NoError(t, err)
	assert.Greater(t, psnr, 25.0)
	assert.False(t, math.IsInf(psnr, 1))

	_, err = PSNR(cover, qsp.NewRaster(qsp.Shape{H: 8, W: 8, C: 3}))
	assert.ErrorIs(t, err, qsp.ErrValidation)
}

func TestEmbedDoesNotAlias(t *testing.T) {
	cd := defaultCodec(t)
	cover := gradientCover(t, 64, 64, 3)
	before := append([]byte(nil), cover.Pix...)
	_, err := cd.Embed(cover, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, before, cover.Pix)
}
