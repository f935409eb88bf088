// Package utils provides hashing, sampling and bounds-checking helpers for qsp.
package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/sha3"
)

var shake256Pool = sync.Pool{
	New: func() interface{} {
		return sha3.NewShake256()
	},
}

var shake128Pool = sync.Pool{
	New: func() interface{} {
		return sha3.NewShake128()
	},
}

// Shake256Concat computes SHAKE256 over the plain concatenation of parts.
// No length prefixes are inserted, so the caller owns the framing.
func Shake256Concat(outputLen int, parts ...[]byte) []byte {
	h := shake256Pool.Get().(sha3.ShakeHash)
	defer func() {
		h.Reset()
		shake256Pool.Put(h)
	}()

	for _, p := range parts {
		h.Write(p)
	}
	output := make([]byte, outputLen)
	_, _ = h.Read(output)
	return output
}

// Shake128Stream returns a SHAKE128 reader absorbed with seed followed by
// the 16-bit little-endian indices. Callers must Release it when done.
func Shake128Stream(seed []byte, indices ...uint16) *XOFStream {
	h := shake128Pool.Get().(sha3.ShakeHash)
	h.Write(seed)
	var idx [2]byte
	for _, i := range indices {
		binary.LittleEndian.PutUint16(idx[:], i)
		h.Write(idx[:])
	}
	return &XOFStream{h: h, pool: &shake128Pool}
}

// Shake256Stream returns a SHAKE256 reader absorbed with the domain-separated
// data. Callers must Release it when done.
func Shake256Stream(domain string, data []byte) *XOFStream {
	domainBytes := []byte(domain)
	if len(domainBytes) > 255 {
		panic("domain string must be at most 255 bytes")
	}
	h := shake256Pool.Get().(sha3.ShakeHash)
	h.Write([]byte{byte(len(domainBytes))})
	h.Write(domainBytes)
	h.Write(data)
	return &XOFStream{h: h, pool: &shake256Pool}
}

// XOFStream is a pooled squeezing-phase SHAKE state.
type XOFStream struct {
	h    sha3.ShakeHash
	pool *sync.Pool
}

// Read squeezes len(p) bytes. It never fails.
func (s *XOFStream) Read(p []byte) (int, error) {
	return s.h.Read(p)
}

// Release returns the state to the pool. The stream must not be used after.
func (s *XOFStream) Release() {
	s.h.Reset()
	s.pool.Put(s.h)
	s.h = nil
}

// SHA256 computes the SHA-256 hash of the concatenation of parts.
func SHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
