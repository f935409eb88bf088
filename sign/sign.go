// Package sign implements the single-party Module-LWE signature used to
// authenticate share holders.
//
// The signature carries its commitment w = HighBits(A*y) explicitly. The
// verifier recomputes the challenge from (message, w) and accepts when
// A*z - c*t lies within beta + alpha/2 + slack of alpha*w.
package sign

import (
	"encoding/binary"
	"errors"
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/utils"
)

const (
	// DomainChallenge separates challenge expansion from other SHAKE256 uses.
	DomainChallenge = "qsp-sign-chal-v1"

	// HashSize is the length of the challenge hash.
	HashSize = 32
)

// Sign creates a signature for a message.
func Sign(r *mlwe.Ring, sk *qsp.SecretKey, message []byte) (*qsp.Signature, error) {
	p := r.Params()
	if err := r.CheckVec(sk.S1, p.L); err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	A, err := r.ExpandMatrix(sk.Seed)
	if err != nil {
		return nil, err
	}

	// y uniform in [-gamma1, gamma1)
	y := make(qsp.PolyVec, p.L)
	for i := range y {
		coeffs, err := utils.SampleUniformBounded(p.N, -int64(p.Gamma1), int64(p.Gamma1)-1)
		if err != nil {
			return nil, err
		}
		y[i] = coeffs
	}

	w := r.HighBitsVec(r.MatVecMul(A, y), p.Alpha())
	cHash := utils.SHA256(message, mlwe.EncodeInt32LE(w))
	c := ChallengeFromHash(p, cHash)

	z := r.AddVec(y, r.MulPolyVec(c, sk.S1))
	for _, poly := range y {
		utils.ZeroizeInt64(poly)
	}

	return &qsp.Signature{Z: z, W: w, CHash: cHash}, nil
}

// Verify checks if a signature is valid for a message.
func Verify(r *mlwe.Ring, pk *qsp.PublicKey, message []byte, sig *qsp.Signature) bool {
	if sig == nil || pk == nil {
		return false
	}
	p := r.Params()
	if len(sig.CHash) != HashSize {
		return false
	}
	if r.CheckVec(sig.Z, p.L) != nil || r.CheckVec(sig.W, p.K) != nil || r.CheckVec(pk.T, p.K) != nil {
		return false
	}

	alpha := p.Alpha()
	// HighBits never exceed (Q/2)/alpha + 1 in magnitude; larger values
	// would alias under the int32 hashing encoding.
	if mlwe.VecInfNorm(sig.W) > r.Q()/2/alpha+1 {
		return false
	}

	expected := utils.SHA256(message, mlwe.EncodeInt32LE(sig.W))
	if !utils.ConstantTimeEqual(expected, sig.CHash) {
		return false
	}

	A, err := r.ExpandMatrix(pk.Seed)
	if err != nil {
		return false
	}
	c := ChallengeFromHash(p, sig.CHash)
	v := r.SubVec(r.MatVecMul(A, sig.Z), r.MulPolyVec(c, pk.T))

	limit := int64(p.Beta) + alpha/2 + int64(p.VerifySlack)
	for i := range v {
		for j, coeff := range v[i] {
			diff := mlwe.CenterMod(coeff-alpha*sig.W[i][j], r.Q())
			if diff < 0 {
				diff = -diff
			}
			if diff >= limit {
				return false
			}
		}
	}
	return true
}

// ChallengeFromHash deterministically maps a hash to a polynomial with
// exactly Tau coefficients in {-1, +1}. Positions are drawn from a SHAKE256
// stream by rejection; each accepted position consumes one more byte whose
// low bit picks the sign.
func ChallengeFromHash(p qsp.LatticeParams, hash []byte) qsp.Poly {
	stream := utils.Shake256Stream(DomainChallenge, hash)
	defer stream.Release()

	bits := 0
	for m := p.N - 1; m > 0; m >>= 1 {
		bits++
	}
	mask := 1<<bits - 1

	c := qsp.NewPoly(p.N)
	var buf [3]byte
	for weight := 0; weight < p.Tau; {
		_, _ = stream.Read(buf[:2])
		pos := int(binary.LittleEndian.Uint16(buf[:2])) & mask
		if pos >= p.N || c[pos] != 0 {
			continue
		}
		_, _ = stream.Read(buf[2:])
		if buf[2]&1 == 1 {
			c[pos] = -1
		} else {
			c[pos] = 1
		}
		weight++
	}
	return c
}

// SerializeSignature serializes a signature.
func SerializeSignature(sig *qsp.Signature) []byte {
	z := mlwe.SerializePolyVec(sig.Z)
	w := mlwe.SerializePolyVec(sig.W)
	result := make([]byte, 0, 4+len(sig.CHash)+len(z)+len(w))

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(sig.CHash)))
	result = append(result, lenBuf...)
	result = append(result, sig.CHash...)
	result = append(result, z...)
	result = append(result, w...)
	return result
}

// DeserializeSignature deserializes a signature.
func DeserializeSignature(data []byte) (*qsp.Signature, error) {
	hashLen, offset, err := utils.SafeReadLength(data, 0, HashSize)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hash length: %w", err)
	}
	if hashLen != HashSize {
		return nil, errors.New("invalid signature: wrong hash length")
	}
	if err := utils.ValidateSliceAccess(data, offset, hashLen); err != nil {
		return nil, errors.New("invalid signature: hash truncated")
	}
	sig := &qsp.Signature{CHash: append([]byte(nil), data[offset:offset+hashLen]...)}
	offset += hashLen

	sig.Z, offset, err = mlwe.DeserializePolyVec(data, offset)
	if err != nil {
		return nil, fmt.Errorf("invalid signature z: %w", err)
	}
	sig.W, offset, err = mlwe.DeserializePolyVec(data, offset)
	if err != nil {
		return nil, fmt.Errorf("invalid signature w: %w", err)
	}
	if offset != len(data) {
		return nil, errors.New("invalid signature: trailing data")
	}
	return sig, nil
}
