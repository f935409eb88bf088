package stego

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// dctMatrix is the orthonormal 8x8 DCT-II basis C, so that the 2D transform
// of a block B is C*B*C^T and its inverse is C^T*D*C.
var dctMatrix = func() *mat.Dense {
	c := mat.NewDense(BlockSize, BlockSize, nil)
	for u := 0; u < BlockSize; u++ {
		scale := math.Sqrt(2.0 / BlockSize)
		if u == 0 {
			scale = math.Sqrt(1.0 / BlockSize)
		}
		for x := 0; x < BlockSize; x++ {
			c.Set(u, x, scale*math.Cos(float64(2*x+1)*float64(u)*math.Pi/(2*BlockSize)))
		}
	}
	return c
}()

// transformer holds scratch matrices for one goroutine.
type transformer struct {
	block *mat.Dense
	coef  *mat.Dense
	tmp   *mat.Dense
}

func newTransformer() *transformer {
	return &transformer{
		block: mat.NewDense(BlockSize, BlockSize, nil),
		coef:  mat.NewDense(BlockSize, BlockSize, nil),
		tmp:   mat.NewDense(BlockSize, BlockSize, nil),
	}
}

// forward computes coef = C * block * C^T.
func (t *transformer) forward() {
	t.tmp.Mul(dctMatrix, t.block)
	t.coef.Mul(t.tmp, dctMatrix.T())
}

// inverse computes block = C^T * coef * C.
func (t *transformer) inverse() {
	t.tmp.Mul(dctMatrix.T(), t.coef)
	t.block.Mul(t.tmp, dctMatrix)
}

// coefficient returns the (u, v) DCT coefficient of the loaded block without
// computing the full transform.
func (t *transformer) coefficient(u, v int) float64 {
	return mat.Inner(dctMatrix.RowView(u), t.block, dctMatrix.RowView(v))
}

// DCT2 returns the 2D DCT-II of an 8x8 block given in row-major order.
func DCT2(block []float64) []float64 {
	t := newTransformer()
	t.block.Copy(mat.NewDense(BlockSize, BlockSize, block))
	t.forward()
	return mat.DenseCopyOf(t.coef).RawMatrix().Data
}

// IDCT2 inverts DCT2.
func IDCT2(coef []float64) []float64 {
	t := newTransformer()
	t.coef.Copy(mat.NewDense(BlockSize, BlockSize, coef))
	t.inverse()
	return mat.DenseCopyOf(t.block).RawMatrix().Data
}
