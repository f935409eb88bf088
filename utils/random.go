package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
)

// RandReader is the entropy source for every sampler. Tests may replace it.
var RandReader io.Reader = rand.Reader

// SecureRandomBytes generates n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(RandReader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomUint64 generates a uniform integer in [0, max) by rejection sampling.
func RandomUint64(max uint64) (uint64, error) {
	if max == 0 {
		return 0, errors.New("max must be positive")
	}
	if max == 1 {
		return 0, nil
	}

	bitsNeeded := 0
	for m := max - 1; m > 0; m >>= 1 {
		bitsNeeded++
	}
	bytesNeeded := (bitsNeeded + 7) / 8
	mask := uint64(1)<<bitsNeeded - 1
	if bitsNeeded == 64 {
		mask = ^uint64(0)
	}

	buf := make([]byte, 8)
	for {
		if _, err := io.ReadFull(RandReader, buf[8-bytesNeeded:]); err != nil {
			return 0, err
		}
		value := binary.BigEndian.Uint64(buf) & mask
		if value < max {
			return value, nil
		}
	}
}

// SampleUniformBounded fills a slice of n integers drawn uniformly from
// [lo, hi] inclusive.
func SampleUniformBounded(n int, lo, hi int64) ([]int64, error) {
	if hi < lo {
		return nil, errors.New("empty sampling range")
	}
	span := uint64(hi - lo + 1)
	out := make([]int64, n)
	for i := range out {
		v, err := RandomUint64(span)
		if err != nil {
			return nil, err
		}
		out[i] = lo + int64(v)
	}
	return out, nil
}

// ValidateSeedEntropy checks if a seed has sufficient entropy.
// It rejects obviously weak seeds (e.g., all zeros, sequential).
// This is a sanity check, not a rigorous randomness test.
func ValidateSeedEntropy(seed []byte) error {
	if len(seed) < 32 {
		return errors.New("seed must be at least 32 bytes")
	}

	first := seed[0]
	allSame := true
	for i := 1; i < len(seed); i++ {
		if seed[i] != first {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("seed has low entropy: all bytes are identical")
	}

	isAscending := true
	isDescending := true
	for i := 1; i < len(seed); i++ {
		if seed[i] != seed[i-1]+1 {
			isAscending = false
		}
		if seed[i] != seed[i-1]-1 {
			isDescending = false
		}
		if !isAscending && !isDescending {
			break
		}
	}
	if isAscending || isDescending {
		return errors.New("seed has low entropy: sequential pattern detected")
	}

	unique := make(map[byte]struct{})
	for _, b := range seed {
		unique[b] = struct{}{}
		if len(unique) >= 8 {
			break
		}
	}
	if len(unique) < 8 {
		return errors.New("seed has low entropy: insufficient byte diversity")
	}

	return nil
}

// ConstantTimeEqual compares two byte slices in constant time.
// This function leaks only the length of the slices.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites a byte slice with zeros.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ZeroizeInt64 overwrites an int64 slice with zeros.
func ZeroizeInt64(s []int64) {
	for i := range s {
		s[i] = 0
	}
	runtime.KeepAlive(s)
}
