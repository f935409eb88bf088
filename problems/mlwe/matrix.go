package mlwe

import (
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

const (
	// chunkBytes is the width of one rejection-sampling candidate.
	chunkBytes = 3

	// squeezeBlock is read from the XOF at a time (one SHAKE128 rate of 168 bytes, times 3).
	squeezeBlock = 504

	// maxSqueezeFactor caps the stream at maxSqueezeFactor*N*3 bytes per cell.
	// Reaching it needs a rejection rate no honest XOF produces; the remaining
	// coefficients are then zero.
	maxSqueezeFactor = 64
)

// ExpandMatrix deterministically expands seed into the K x L public matrix A.
// Cell (i, j) is sampled from SHAKE128(seed || i || j) by reading 3-byte
// big-endian chunks, masking to the bit length of Q-1 and rejecting values >= Q.
func (r *Ring) ExpandMatrix(seed []byte) (qsp.PolyMatrix, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: matrix seed is empty", qsp.ErrValidation)
	}
	bits := 0
	for m := r.q - 1; m > 0; m >>= 1 {
		bits++
	}
	if bits > chunkBytes*8 {
		return nil, fmt.Errorf("%w: modulus exceeds %d-bit sampling", qsp.ErrValidation, chunkBytes*8)
	}
	mask := int64(1)<<bits - 1

	k, l := r.params.K, r.params.L
	A := make(qsp.PolyMatrix, k)
	for i := 0; i < k; i++ {
		A[i] = make([]qsp.Poly, l)
		for j := 0; j < l; j++ {
			A[i][j] = r.samplePolyUniform(seed, uint16(i), uint16(j), mask)
		}
	}
	return A, nil
}

func (r *Ring) samplePolyUniform(seed []byte, row, col uint16, mask int64) qsp.Poly {
	stream := utils.Shake128Stream(seed, row, col)
	defer stream.Release()

	poly := make(qsp.Poly, r.n)
	buf := make([]byte, squeezeBlock)
	limit := maxSqueezeFactor * r.n * chunkBytes
	squeezed := 0
	filled := 0
	for filled < r.n && squeezed < limit {
		_, _ = stream.Read(buf)
		squeezed += len(buf)
		for off := 0; off+chunkBytes <= len(buf) && filled < r.n; off += chunkBytes {
			v := (int64(buf[off])<<16 | int64(buf[off+1])<<8 | int64(buf[off+2])) & mask
			if v < r.q {
				poly[filled] = v
				filled++
			}
		}
	}
	return poly
}

// MatVecMul returns A*v mod Q.
func (r *Ring) MatVecMul(A qsp.PolyMatrix, v qsp.PolyVec) qsp.PolyVec {
	out := make(qsp.PolyVec, len(A))
	for i, row := range A {
		acc := qsp.NewPoly(r.n)
		for j, a := range row {
			acc = r.Add(acc, r.Mul(a, v[j]))
		}
		out[i] = acc
	}
	return out
}
