package stego

import (
	"fmt"
	"math"

	qsp "github.com/BackendStack21/qsp-go"
)

// PSNR returns the peak signal-to-noise ratio of b against a in dB.
// Identical rasters give +Inf.
func PSNR(a, b *qsp.Raster) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if a.Shape != b.Shape {
		return 0, fmt.Errorf("%w: shapes %s and %s differ", qsp.ErrValidation, a.Shape, b.Shape)
	}
	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	mse := sum / float64(len(a.Pix))
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(255*255/mse), nil
}
