package mlwe

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

// maxSeedLength bounds decoded seeds.
const maxSeedLength = 1024

// EncodeInt32LE writes every coefficient as a signed 32-bit little-endian
// integer. It is the hashing encoding for small-valued vectors such as
// HighBits outputs.
func EncodeInt32LE(v qsp.PolyVec) []byte {
	size := 0
	for _, p := range v {
		size += 4 * len(p)
	}
	out := make([]byte, 0, size)
	var buf [4]byte
	for _, p := range v {
		for _, c := range p {
			binary.LittleEndian.PutUint32(buf[:], uint32(int32(c)))
			out = append(out, buf[:]...)
		}
	}
	return out
}

// SerializePolyVec encodes a vector as count || degree || int64 LE coefficients.
func SerializePolyVec(v qsp.PolyVec) []byte {
	degree := 0
	if len(v) > 0 {
		degree = len(v[0])
	}
	out := make([]byte, 8, 8+8*len(v)*degree)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(v)))
	binary.LittleEndian.PutUint32(out[4:], uint32(degree))
	var buf [8]byte
	for _, p := range v {
		for _, c := range p {
			binary.LittleEndian.PutUint64(buf[:], uint64(c))
			out = append(out, buf[:]...)
		}
	}
	return out
}

// DeserializePolyVec decodes a vector written by SerializePolyVec starting at
// offset and returns the offset just past it.
func DeserializePolyVec(data []byte, offset int) (qsp.PolyVec, int, error) {
	count, offset, err := utils.SafeReadLength(data, offset, utils.MaxPolyCount)
	if err != nil {
		return nil, offset, fmt.Errorf("invalid polynomial vector count: %w", err)
	}
	degree, offset, err := utils.SafeReadLength(data, offset, utils.MaxPolyDegree)
	if err != nil {
		return nil, offset, fmt.Errorf("invalid polynomial degree: %w", err)
	}
	size, err := utils.SafeMultiply3(count, degree, 8)
	if err != nil {
		return nil, offset, err
	}
	if err := utils.ValidateSliceAccess(data, offset, size); err != nil {
		return nil, offset, errors.New("invalid polynomial vector: data truncated")
	}

	v := make(qsp.PolyVec, count)
	for i := range v {
		v[i] = make(qsp.Poly, degree)
		for j := range v[i] {
			v[i][j] = int64(binary.LittleEndian.Uint64(data[offset:]))
			offset += 8
		}
	}
	return v, offset, nil
}

func appendBytes(out, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	out = append(out, lenBuf[:]...)
	return append(out, b...)
}

func readBytes(data []byte, offset, maxAllowed int) ([]byte, int, error) {
	n, offset, err := utils.SafeReadLength(data, offset, maxAllowed)
	if err != nil {
		return nil, offset, err
	}
	if err := utils.ValidateSliceAccess(data, offset, n); err != nil {
		return nil, offset, err
	}
	return append([]byte(nil), data[offset:offset+n]...), offset + n, nil
}

// SerializePublicKey serializes a public key.
func SerializePublicKey(pk *qsp.PublicKey) []byte {
	out := appendBytes(nil, pk.Seed)
	return append(out, SerializePolyVec(pk.T)...)
}

// DeserializePublicKey deserializes a public key.
func DeserializePublicKey(data []byte) (*qsp.PublicKey, error) {
	seed, offset, err := readBytes(data, 0, maxSeedLength)
	if err != nil {
		return nil, fmt.Errorf("invalid public key seed: %w", err)
	}
	t, offset, err := DeserializePolyVec(data, offset)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	if offset != len(data) {
		return nil, errors.New("invalid public key: trailing data")
	}
	return &qsp.PublicKey{Seed: seed, T: t}, nil
}

// SerializeSecretKey serializes a secret key.
func SerializeSecretKey(sk *qsp.SecretKey) []byte {
	out := appendBytes(nil, sk.Seed)
	out = append(out, SerializePolyVec(sk.S1)...)
	return append(out, SerializePolyVec(sk.S2)...)
}

// DeserializeSecretKey deserializes a secret key.
func DeserializeSecretKey(data []byte) (*qsp.SecretKey, error) {
	seed, offset, err := readBytes(data, 0, maxSeedLength)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key seed: %w", err)
	}
	s1, offset, err := DeserializePolyVec(data, offset)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key s1: %w", err)
	}
	s2, offset, err := DeserializePolyVec(data, offset)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key s2: %w", err)
	}
	if offset != len(data) {
		return nil, errors.New("invalid secret key: trailing data")
	}
	return &qsp.SecretKey{Seed: seed, S1: s1, S2: s2}, nil
}

// Fingerprint returns the hex SHA-256 of the serialized public key.
func Fingerprint(pk *qsp.PublicKey) string {
	return hex.EncodeToString(utils.SHA256(SerializePublicKey(pk)))
}
