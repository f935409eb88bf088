package sharing

import (
	"fmt"
	"math/big"

	qsp "github.com/BackendStack21/qsp-go"
)

// Reconstructor recombines CRT shares into the secret raster.
type Reconstructor struct {
	Threshold     int
	SecretModulus int
	Scrambler     *Scrambler
}

// NewReconstructor returns a reconstructor matching NewSplitter and NewScrambler.
func NewReconstructor(p qsp.SharingParams, threshold int) *Reconstructor {
	return &Reconstructor{
		Threshold:     threshold,
		SecretModulus: p.SecretModulus,
		Scrambler:     NewScrambler(p),
	}
}

// Combine solves the CRT system for every sample and returns the
// (still scrambled) raster of values Y mod q0. All supplied shares are used.
func (r *Reconstructor) Combine(shares []qsp.SharePayload) (*qsp.Raster, error) {
	if r.Threshold < 1 {
		return nil, fmt.Errorf("%w: threshold must be positive", qsp.ErrValidation)
	}
	if len(shares) < r.Threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), r.Threshold)
	}
	if err := checkConsistent(shares); err != nil {
		return nil, err
	}

	moduli := make([]int, len(shares))
	for i := range shares {
		moduli[i] = shares[i].Modulus
	}
	M := product(moduli)

	// w_i = (M/m_i) * ((M/m_i)^-1 mod m_i)
	weights := make([]*big.Int, len(shares))
	for i, m := range moduli {
		bm := big.NewInt(int64(m))
		mi := new(big.Int).Quo(M, bm)
		inv := new(big.Int).ModInverse(mi, bm)
		if inv == nil {
			return nil, fmt.Errorf("%w: modulus %d has no inverse", ErrShareMismatch, m)
		}
		weights[i] = inv.Mul(inv, mi)
	}

	q0 := big.NewInt(int64(r.SecretModulus))
	shape := shares[0].Shape
	out := qsp.NewRaster(shape)
	acc := new(big.Int)
	term := new(big.Int)
	res := new(big.Int)
	for j := range out.Pix {
		acc.SetInt64(0)
		for i := range shares {
			term.SetUint64(uint64(shares[i].Data[j]))
			term.Mul(term, weights[i])
			acc.Add(acc, term)
		}
		acc.Mod(acc, M)
		res.Mod(acc, q0)
		out.Pix[j] = uint8(res.Uint64())
	}
	return out, nil
}

// Reconstruct combines the shares, undoes the scramble and crops to the
// original shape recorded in the shares.
func (r *Reconstructor) Reconstruct(shares []qsp.SharePayload) (*qsp.Raster, error) {
	scrambled, err := r.Combine(shares)
	if err != nil {
		return nil, err
	}
	if r.Scrambler == nil {
		return Crop(scrambled, shares[0].OriginalShape.H, shares[0].OriginalShape.W)
	}
	return r.Scrambler.Unscramble(scrambled, shares[0].OriginalShape)
}

// checkConsistent rejects payloads that are individually malformed or that
// disagree on shapes, indices or moduli.
func checkConsistent(shares []qsp.SharePayload) error {
	first := shares[0]
	indices := make(map[int]bool, len(shares))
	for i := range shares {
		s := &shares[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("share %d: %w", s.Index, err)
		}
		if s.Shape != first.Shape || s.OriginalShape != first.OriginalShape {
			return fmt.Errorf("%w: share %d has shape %s/%s, expected %s/%s",
				ErrShareMismatch, s.Index, s.Shape, s.OriginalShape, first.Shape, first.OriginalShape)
		}
		if indices[s.Index] {
			return fmt.Errorf("%w: duplicate share index %d", ErrShareMismatch, s.Index)
		}
		indices[s.Index] = true
		for _, prev := range shares[:i] {
			if gcd(prev.Modulus, s.Modulus) != 1 {
				return fmt.Errorf("%w: moduli %d and %d are not coprime", ErrShareMismatch, prev.Modulus, s.Modulus)
			}
		}
	}
	return nil
}
