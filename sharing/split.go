package sharing

import (
	"fmt"
	"math"
	"math/big"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

// Splitter divides a raster into CRT shares.
type Splitter struct {
	Threshold     int
	PixelMax      int
	SecretModulus int

	// Blind adds a random multiple of SecretModulus to every pixel before
	// reduction, y = v + alpha*q0 with y below the product of the Threshold
	// smallest moduli. Without it share i is simply v mod m_i.
	Blind bool
}

// NewSplitter returns a blinding splitter for the given threshold.
func NewSplitter(p qsp.SharingParams, threshold int) *Splitter {
	return &Splitter{
		Threshold:     threshold,
		PixelMax:      p.PixelMax,
		SecretModulus: p.SecretModulus,
		Blind:         true,
	}
}

// Split produces one share per modulus. Shares are indexed from 1 in the
// order of moduli. original is recorded in every share for cropping after
// reconstruction.
func (s *Splitter) Split(r *qsp.Raster, original qsp.Shape, moduli []int) ([]qsp.SharePayload, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateModuli(moduli, s.Threshold, s.PixelMax, s.SecretModulus); err != nil {
		return nil, err
	}
	for _, v := range r.Pix {
		if int(v) > s.PixelMax {
			return nil, fmt.Errorf("%w: pixel %d exceeds %d", qsp.ErrValidation, v, s.PixelMax)
		}
	}

	values, err := s.blind(r.Pix, SecretRange(moduli, s.Threshold))
	if err != nil {
		return nil, err
	}

	shares := make([]qsp.SharePayload, len(moduli))
	for i, m := range moduli {
		data := make([]uint16, len(values))
		for j, y := range values {
			data[j] = uint16(y % uint64(m))
		}
		shares[i] = qsp.SharePayload{
			Index:         i + 1,
			Modulus:       m,
			Shape:         r.Shape,
			OriginalShape: original,
			Data:          data,
		}
	}
	return shares, nil
}

// blind lifts every pixel to v + alpha*q0 with alpha uniform in
// [0, (limit-1-PixelMax)/q0]. The range is clamped so every value fits in a
// uint64.
func (s *Splitter) blind(pix []uint8, limit *big.Int) ([]uint64, error) {
	out := make([]uint64, len(pix))
	for i, v := range pix {
		out[i] = uint64(v)
	}
	if !s.Blind {
		return out, nil
	}

	q0 := big.NewInt(int64(s.SecretModulus))
	span := new(big.Int).Sub(limit, big.NewInt(int64(s.PixelMax)+1))
	span.Div(span, q0)
	if span.Sign() <= 0 {
		return out, nil
	}
	if ceiling := (math.MaxUint64 - uint64(s.PixelMax)) / uint64(s.SecretModulus); !span.IsUint64() || span.Uint64() > ceiling {
		span.SetUint64(ceiling)
	}

	bound := span.Uint64() + 1
	qv := uint64(s.SecretModulus)
	for i := range out {
		alpha, err := utils.RandomUint64(bound)
		if err != nil {
			return nil, fmt.Errorf("failed to sample blinding factor: %w", err)
		}
		out[i] += alpha * qv
	}
	return out, nil
}
