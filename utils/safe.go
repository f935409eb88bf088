// This file contains safe arithmetic and allocation helpers that keep
// decoders of untrusted bytes from overflowing or over-allocating.

package utils

import (
	"errors"
	"math"
)

// Maximum allowed lengths for decoded data.
const (
	// MaxPolyCount is the maximum number of polynomials in a decoded vector.
	MaxPolyCount = 64

	// MaxPolyDegree is the maximum decoded ring degree.
	MaxPolyDegree = 1 << 12

	// MaxRasterSamples is the maximum number of samples in a decoded raster or share.
	MaxRasterSamples = 1 << 26 // 64M samples

	// MaxMessageSize is the maximum allowed message size in bytes.
	MaxMessageSize = 1 << 20 // 1MB

	// MaxPayloadLength is the maximum allowed payload length for serialized data.
	MaxPayloadLength = 1 << 28 // 256MB
)

var (
	// ErrOverflow indicates an integer overflow occurred.
	ErrOverflow = errors.New("integer overflow")

	// ErrExceedsLimit indicates a value exceeds the allowed limit.
	ErrExceedsLimit = errors.New("value exceeds allowed limit")

	// ErrInvalidLength indicates an invalid length value.
	ErrInvalidLength = errors.New("invalid length")
)

// SafeMultiply multiplies two non-negative integers and returns an error if overflow occurs.
func SafeMultiply(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, ErrInvalidLength
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// SafeMultiply3 multiplies three non-negative integers and returns an error if overflow occurs.
func SafeMultiply3(a, b, c int) (int, error) {
	ab, err := SafeMultiply(a, b)
	if err != nil {
		return 0, err
	}
	return SafeMultiply(ab, c)
}

// SafeMakeByteSlice creates a byte slice with bounds checking.
func SafeMakeByteSlice(count, maxAllowed int) ([]byte, error) {
	if err := CheckLength(count, maxAllowed); err != nil {
		return nil, err
	}
	return make([]byte, count), nil
}

// SafeMakeUint16Slice creates a uint16 slice with bounds checking.
func SafeMakeUint16Slice(count, maxAllowed int) ([]uint16, error) {
	if err := CheckLength(count, maxAllowed); err != nil {
		return nil, err
	}
	return make([]uint16, count), nil
}

// CheckLength validates that length is within [0, maxAllowed].
func CheckLength(length, maxAllowed int) error {
	if length < 0 {
		return ErrInvalidLength
	}
	if length > maxAllowed {
		return ErrExceedsLimit
	}
	return nil
}

// SafeReadLength reads a little-endian uint32 length at offset and validates it.
func SafeReadLength(data []byte, offset, maxAllowed int) (length int, newOffset int, err error) {
	if offset < 0 || offset+4 > len(data) {
		return 0, offset, errors.New("truncated length field")
	}
	raw := uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24
	if uint64(raw) > uint64(maxAllowed) {
		return 0, offset, ErrExceedsLimit
	}
	return int(raw), offset + 4, nil
}

// ValidateSliceAccess checks that accessing data[offset:offset+size] is safe.
func ValidateSliceAccess(data []byte, offset, size int) error {
	if offset < 0 || size < 0 {
		return ErrInvalidLength
	}
	if offset+size < offset {
		return ErrOverflow
	}
	if offset+size > len(data) {
		return errors.New("slice access out of bounds")
	}
	return nil
}
