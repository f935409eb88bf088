package sharing

import (
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
)

// Scrambler is an Arnold cat-map pixel permutation on square rasters:
//
//	(x, y) -> ((x + b*y) mod n, (a*x + (a*b+1)*y) mod n)
//
// The map has determinant 1, so it is a bijection for every n.
type Scrambler struct {
	A          int
	B          int
	Iterations int
}

// NewScrambler returns a scrambler using the sharing parameters.
func NewScrambler(p qsp.SharingParams) *Scrambler {
	return &Scrambler{A: p.ScrambleA, B: p.ScrambleB, Iterations: p.ScrambleIterations}
}

func (s *Scrambler) validate() error {
	if s.A < 0 || s.B < 0 || s.Iterations < 0 {
		return fmt.Errorf("%w: scrambler parameters must be non-negative", qsp.ErrValidation)
	}
	return nil
}

// Pad returns r zero-padded at the bottom and right to an n x n square with
// n = max(H, W).
func Pad(r *qsp.Raster) *qsp.Raster {
	n := max(r.H, r.W)
	out := qsp.NewRaster(qsp.Shape{H: n, W: n, C: r.C})
	for y := 0; y < r.H; y++ {
		copy(out.Pix[out.Offset(y, 0, 0):out.Offset(y, r.W, 0)], r.Pix[r.Offset(y, 0, 0):r.Offset(y, r.W, 0)])
	}
	return out
}

// Crop returns the top-left h x w region of r.
func Crop(r *qsp.Raster, h, w int) (*qsp.Raster, error) {
	if h <= 0 || w <= 0 || h > r.H || w > r.W {
		return nil, fmt.Errorf("%w: cannot crop %s to %dx%d", qsp.ErrValidation, r.Shape, h, w)
	}
	out := qsp.NewRaster(qsp.Shape{H: h, W: w, C: r.C})
	for y := 0; y < h; y++ {
		copy(out.Pix[out.Offset(y, 0, 0):out.Offset(y, w, 0)], r.Pix[r.Offset(y, 0, 0):r.Offset(y, w, 0)])
	}
	return out, nil
}

// Scramble pads r to a square and applies the map Iterations times. It
// returns the permuted raster and r's original shape.
func (s *Scrambler) Scramble(r *qsp.Raster) (*qsp.Raster, qsp.Shape, error) {
	if err := s.validate(); err != nil {
		return nil, qsp.Shape{}, err
	}
	if err := r.Validate(); err != nil {
		return nil, qsp.Shape{}, err
	}
	cur := Pad(r)
	n, c := cur.H, cur.C
	a, b := s.A, s.B
	next := qsp.NewRaster(cur.Shape)
	for it := 0; it < s.Iterations; it++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				nx := (x + b*y) % n
				ny := (a*x + (a*b+1)*y) % n
				copy(next.Pix[next.Offset(ny, nx, 0):next.Offset(ny, nx, 0)+c], cur.Pix[cur.Offset(y, x, 0):cur.Offset(y, x, 0)+c])
			}
		}
		cur, next = next, cur
	}
	return cur, r.Shape, nil
}

// Unscramble applies the inverse map Iterations times and crops the result
// to original.
//
//	x_old = ((a*b+1)*x - b*y) mod n,  y_old = (y - a*x) mod n
func (s *Scrambler) Unscramble(r *qsp.Raster, original qsp.Shape) (*qsp.Raster, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.H != r.W {
		return nil, fmt.Errorf("%w: scrambled raster must be square, got %s", qsp.ErrValidation, r.Shape)
	}
	if original.C != r.C {
		return nil, fmt.Errorf("%w: channel count %d does not match %d", qsp.ErrValidation, original.C, r.C)
	}
	n, c := r.H, r.C
	a, b := s.A, s.B
	cur := r.Clone()
	next := qsp.NewRaster(cur.Shape)
	for it := 0; it < s.Iterations; it++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				ox := mod((a*b+1)*x-b*y, n)
				oy := mod(y-a*x, n)
				copy(next.Pix[next.Offset(oy, ox, 0):next.Offset(oy, ox, 0)+c], cur.Pix[cur.Offset(y, x, 0):cur.Offset(y, x, 0)+c])
			}
		}
		cur, next = next, cur
	}
	return Crop(cur, original.H, original.W)
}

func mod(x, n int) int {
	m := x % n
	if m < 0 {
		m += n
	}
	return m
}
