// Package mlwe implements Module-LWE ring arithmetic and key generation over
// Z_Q[X]/(X^N+1).
package mlwe

import (
	"errors"
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v4/ring"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
)

// ErrNoNTT is returned by MulNTT when the modulus has no 2N-th root of unity.
var ErrNoNTT = errors.New("modulus does not support a negacyclic NTT")

const (
	// minNTTDegree is the smallest degree the lattigo ring accepts.
	minNTTDegree = 16

	// maxModulus keeps coefficient products inside int64.
	maxModulus = 1 << 31
)

// Ring is an immutable polynomial ring context. It is safe for concurrent use.
type Ring struct {
	params qsp.LatticeParams
	n      int
	q      int64
	ntt    *ring.Ring // nil when the NTT path is unavailable
}

// NewRing builds the ring for the given lattice parameters, enabling the NTT
// multiplication path when Q = 1 (mod 2N).
func NewRing(params qsp.LatticeParams) (*Ring, error) {
	if params.N <= 0 || params.Q <= 1 || params.Q >= maxModulus {
		return nil, fmt.Errorf("%w: ring needs N > 0 and 1 < Q < 2^31", qsp.ErrValidation)
	}
	r := &Ring{params: params, n: params.N, q: int64(params.Q)}
	if core.NTTFriendly(params) && params.N >= minNTTDegree {
		nttRing, err := ring.NewRing(params.N, []uint64{uint64(params.Q)})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to build NTT ring: %v", qsp.ErrValidation, err)
		}
		r.ntt = nttRing
	}
	return r, nil
}

// Params returns the lattice parameters the ring was built with.
func (r *Ring) Params() qsp.LatticeParams { return r.params }

// N returns the ring degree.
func (r *Ring) N() int { return r.n }

// Q returns the modulus.
func (r *Ring) Q() int64 { return r.q }

// HasNTT reports whether Mul uses the NTT path.
func (r *Ring) HasNTT() bool { return r.ntt != nil }

// Mod returns x mod q in [0, q).
func Mod(x, q int64) int64 {
	m := x % q
	if m < 0 {
		m += q
	}
	return m
}

// CenterMod returns the representative of x mod q in (-q/2, q/2].
func CenterMod(x, q int64) int64 {
	m := Mod(x, q)
	if m > q/2 {
		m -= q
	}
	return m
}

// Reduce returns a copy of a with coefficients in [0, Q).
func (r *Ring) Reduce(a qsp.Poly) qsp.Poly {
	out := make(qsp.Poly, len(a))
	for i, c := range a {
		out[i] = Mod(c, r.q)
	}
	return out
}

// Center returns a copy of a with coefficients in (-Q/2, Q/2].
func (r *Ring) Center(a qsp.Poly) qsp.Poly {
	out := make(qsp.Poly, len(a))
	for i, c := range a {
		out[i] = CenterMod(c, r.q)
	}
	return out
}

// Add returns a + b mod Q.
func (r *Ring) Add(a, b qsp.Poly) qsp.Poly {
	out := make(qsp.Poly, r.n)
	for i := range out {
		out[i] = Mod(a[i]+b[i], r.q)
	}
	return out
}

// Sub returns a - b mod Q.
func (r *Ring) Sub(a, b qsp.Poly) qsp.Poly {
	out := make(qsp.Poly, r.n)
	for i := range out {
		out[i] = Mod(a[i]-b[i], r.q)
	}
	return out
}

// MulSchoolbook returns a*b mod (X^N+1, Q) by negacyclic convolution.
func (r *Ring) MulSchoolbook(a, b qsp.Poly) qsp.Poly {
	n := r.n
	ar := r.Reduce(a)
	br := r.Reduce(b)
	acc := make([]int64, n)
	for i := 0; i < n; i++ {
		if ar[i] == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			p := ar[i] * br[j] % r.q
			k := i + j
			if k < n {
				acc[k] += p
			} else {
				acc[k-n] -= p
			}
		}
	}
	for k := range acc {
		acc[k] = Mod(acc[k], r.q)
	}
	return acc
}

// MulNTT returns a*b mod (X^N+1, Q) through the lattigo NTT. The result is
// identical to MulSchoolbook.
func (r *Ring) MulNTT(a, b qsp.Poly) (qsp.Poly, error) {
	if r.ntt == nil {
		return nil, ErrNoNTT
	}
	pa := r.ntt.NewPoly()
	pb := r.ntt.NewPoly()
	for i := 0; i < r.n; i++ {
		pa.Coeffs[0][i] = uint64(Mod(a[i], r.q))
		pb.Coeffs[0][i] = uint64(Mod(b[i], r.q))
	}

	r.ntt.MForm(pa, pa)
	r.ntt.MForm(pb, pb)
	r.ntt.NTT(pa, pa)
	r.ntt.NTT(pb, pb)
	res := r.ntt.NewPoly()
	r.ntt.MulCoeffsMontgomery(pa, pb, res)
	r.ntt.InvNTT(res, res)
	r.ntt.InvMForm(res, res)

	out := make(qsp.Poly, r.n)
	for i, c := range res.Coeffs[0] {
		out[i] = int64(c)
	}
	return out, nil
}

// Mul returns a*b mod (X^N+1, Q), using the NTT when available.
func (r *Ring) Mul(a, b qsp.Poly) qsp.Poly {
	if r.ntt != nil {
		out, err := r.MulNTT(a, b)
		if err == nil {
			return out
		}
	}
	return r.MulSchoolbook(a, b)
}

// Decompose splits x into (r1, r0) with centered(x) = r1*alpha + r0 and
// r0 in (-alpha/2, alpha/2].
func (r *Ring) Decompose(x, alpha int64) (r1, r0 int64) {
	xc := CenterMod(x, r.q)
	r0 = Mod(xc, alpha)
	if r0 > alpha/2 {
		r0 -= alpha
	}
	r1 = (xc - r0) / alpha
	return r1, r0
}

// HighBits returns the r1 part of Decompose for every coefficient.
func (r *Ring) HighBits(a qsp.Poly, alpha int64) qsp.Poly {
	out := make(qsp.Poly, len(a))
	for i, c := range a {
		out[i], _ = r.Decompose(c, alpha)
	}
	return out
}

// LowBits returns the r0 part of Decompose for every coefficient.
func (r *Ring) LowBits(a qsp.Poly, alpha int64) qsp.Poly {
	out := make(qsp.Poly, len(a))
	for i, c := range a {
		_, out[i] = r.Decompose(c, alpha)
	}
	return out
}

// HighBitsVec applies HighBits to each polynomial.
func (r *Ring) HighBitsVec(v qsp.PolyVec, alpha int64) qsp.PolyVec {
	out := make(qsp.PolyVec, len(v))
	for i, p := range v {
		out[i] = r.HighBits(p, alpha)
	}
	return out
}

// LowBitsVec applies LowBits to each polynomial.
func (r *Ring) LowBitsVec(v qsp.PolyVec, alpha int64) qsp.PolyVec {
	out := make(qsp.PolyVec, len(v))
	for i, p := range v {
		out[i] = r.LowBits(p, alpha)
	}
	return out
}

// CenterVec applies Center to each polynomial.
func (r *Ring) CenterVec(v qsp.PolyVec) qsp.PolyVec {
	out := make(qsp.PolyVec, len(v))
	for i, p := range v {
		out[i] = r.Center(p)
	}
	return out
}

// AddVec returns a + b mod Q element-wise.
func (r *Ring) AddVec(a, b qsp.PolyVec) qsp.PolyVec {
	out := make(qsp.PolyVec, len(a))
	for i := range a {
		out[i] = r.Add(a[i], b[i])
	}
	return out
}

// SubVec returns a - b mod Q element-wise.
func (r *Ring) SubVec(a, b qsp.PolyVec) qsp.PolyVec {
	out := make(qsp.PolyVec, len(a))
	for i := range a {
		out[i] = r.Sub(a[i], b[i])
	}
	return out
}

// MulPolyVec returns c*v mod Q for a scalar polynomial c.
func (r *Ring) MulPolyVec(c qsp.Poly, v qsp.PolyVec) qsp.PolyVec {
	out := make(qsp.PolyVec, len(v))
	for i, p := range v {
		out[i] = r.Mul(c, p)
	}
	return out
}

// AddVecRaw accumulates src into dst without reduction.
func AddVecRaw(dst, src qsp.PolyVec) {
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] += src[i][j]
		}
	}
}

// ScaleVec multiplies every coefficient by s without reduction.
func ScaleVec(v qsp.PolyVec, s int64) qsp.PolyVec {
	out := make(qsp.PolyVec, len(v))
	for i, p := range v {
		out[i] = make(qsp.Poly, len(p))
		for j, c := range p {
			out[i][j] = c * s
		}
	}
	return out
}

// InfNorm returns max |a_i| over the coefficients as stored.
func InfNorm(a qsp.Poly) int64 {
	var m int64
	for _, c := range a {
		if c == math.MinInt64 {
			return math.MaxInt64
		}
		if c < 0 {
			c = -c
		}
		if c > m {
			m = c
		}
	}
	return m
}

// VecInfNorm returns the largest InfNorm over the vector.
func VecInfNorm(v qsp.PolyVec) int64 {
	var m int64
	for _, p := range v {
		if n := InfNorm(p); n > m {
			m = n
		}
	}
	return m
}

// CheckVec verifies that v holds size polynomials of degree N.
func (r *Ring) CheckVec(v qsp.PolyVec, size int) error {
	if len(v) != size {
		return fmt.Errorf("%w: expected %d polynomials, got %d", qsp.ErrValidation, size, len(v))
	}
	for i, p := range v {
		if len(p) != r.n {
			return fmt.Errorf("%w: polynomial %d has %d coefficients, want %d", qsp.ErrValidation, i, len(p), r.n)
		}
	}
	return nil
}
