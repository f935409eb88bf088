// Package stego hides length-prefixed byte payloads in 8-bit rasters, one bit
// per 8x8 block, in the polarity of a fixed mid-frequency DCT coefficient.
package stego

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
	"github.com/BackendStack21/qsp-go/utils"
)

const (
	// HeaderSize is the big-endian payload length prefix.
	HeaderSize = 4

	// maxRepush bounds how often a block is re-pushed with doubled strength
	// when rounding or clipping destroyed its bit.
	maxRepush = 6

	// readMargin is the smallest coefficient magnitude accepted as a stable bit.
	readMargin = 1.0
)

var (
	// ErrCapacity is returned when a payload does not fit the cover.
	ErrCapacity = fmt.Errorf("%w: payload exceeds embedding capacity", qsp.ErrValidation)

	// ErrUnstableBlock is returned when a block cannot hold its bit after
	// quantization even at the highest re-push strength.
	ErrUnstableBlock = fmt.Errorf("%w: block cannot hold bit", qsp.ErrValidation)
)

// Codec embeds and extracts payloads. It is stateless and safe for
// concurrent use.
type Codec struct {
	Strength   int
	CoeffIndex int

	u, v int
}

// NewCodec validates the stego parameters and returns a codec.
func NewCodec(p qsp.StegoParams) (*Codec, error) {
	if p.Strength < core.MinStrength || p.Strength > core.MaxStrength {
		return nil, fmt.Errorf("%w: strength %d outside [%d, %d]", qsp.ErrValidation, p.Strength, core.MinStrength, core.MaxStrength)
	}
	if p.CoeffIndex < 1 {
		return nil, fmt.Errorf("%w: coefficient index %d is the DC term", qsp.ErrValidation, p.CoeffIndex)
	}
	u, v, err := ZigZag(p.CoeffIndex)
	if err != nil {
		return nil, err
	}
	return &Codec{Strength: p.Strength, CoeffIndex: p.CoeffIndex, u: u, v: v}, nil
}

// Capacity returns the number of bits a raster of the given shape can hold.
func Capacity(s qsp.Shape) int {
	return (s.H / BlockSize) * (s.W / BlockSize) * s.C
}

// MaxPayload returns the largest payload in bytes that fits the shape.
func MaxPayload(s qsp.Shape) int {
	n := Capacity(s)/8 - HeaderSize
	if n < 0 {
		return 0
	}
	return n
}

// blockIter visits blocks in channel, row, column order.
type blockIter struct {
	shape     qsp.Shape
	c, by, bx int
}

func (it *blockIter) next() (c, y, x int) {
	c, y, x = it.c, it.by*BlockSize, it.bx*BlockSize
	it.bx++
	if it.bx >= it.shape.W/BlockSize {
		it.bx = 0
		it.by++
		if it.by >= it.shape.H/BlockSize {
			it.by = 0
			it.c++
		}
	}
	return c, y, x
}

// Embed returns a copy of cover carrying payload. The capacity is checked
// before any pixel is touched.
func (cd *Codec) Embed(cover *qsp.Raster, payload []byte) (*qsp.Raster, error) {
	if err := cover.Validate(); err != nil {
		return nil, err
	}
	bits := (HeaderSize + len(payload)) * 8
	if capacity := Capacity(cover.Shape); bits > capacity {
		return nil, fmt.Errorf("%w: need %d bits, cover %s holds %d", ErrCapacity, bits, cover.Shape, capacity)
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload length %d", ErrCapacity, len(payload))
	}

	out := cover.Clone()
	for i, p := range out.Pix {
		switch p {
		case 0:
			out.Pix[i] = 1
		case 255:
			out.Pix[i] = 254
		}
	}

	framed := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(len(payload)))
	copy(framed[HeaderSize:], payload)

	t := newTransformer()
	it := &blockIter{shape: out.Shape}
	for _, b := range framed {
		for k := 7; k >= 0; k-- {
			c, y, x := it.next()
			if err := cd.embedBit(t, out, c, y, x, (b>>k)&1 == 1); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// embedBit forces the polarity of the target coefficient in one block. The
// block is left untouched when it already reads as the wanted bit with at
// least Strength margin. Otherwise the coefficient is pushed to +-k, the block
// is quantized and read back; a failed read doubles k.
func (cd *Codec) embedBit(t *transformer, r *qsp.Raster, c, y, x int, bit bool) error {
	load(t, r, c, y, x)
	t.forward()
	orig := t.coef.At(cd.u, cd.v)

	k := float64(cd.Strength)
	if (bit && orig >= k) || (!bit && orig <= -k) {
		return nil
	}

	saved := mat.DenseCopyOf(t.coef)
	for attempt := 0; attempt <= maxRepush; attempt++ {
		t.coef.Copy(saved)
		if bit {
			t.coef.Set(cd.u, cd.v, k)
		} else {
			t.coef.Set(cd.u, cd.v, -k)
		}
		t.inverse()
		store(t, r, c, y, x)

		load(t, r, c, y, x)
		got := t.coefficient(cd.u, cd.v)
		if (bit && got >= readMargin) || (!bit && got <= -readMargin) {
			return nil
		}
		k *= 2
	}
	return fmt.Errorf("%w: channel %d block (%d, %d)", ErrUnstableBlock, c, y/BlockSize, x/BlockSize)
}

// Extract reads the length header and then exactly that many payload bytes.
func (cd *Codec) Extract(stego *qsp.Raster) ([]byte, error) {
	if err := stego.Validate(); err != nil {
		return nil, err
	}
	capacity := Capacity(stego.Shape)
	if capacity < HeaderSize*8 {
		return nil, fmt.Errorf("%w: cover %s cannot hold a header", ErrCapacity, stego.Shape)
	}

	t := newTransformer()
	it := &blockIter{shape: stego.Shape}
	readByte := func() byte {
		var b byte
		for k := 0; k < 8; k++ {
			c, y, x := it.next()
			load(t, stego, c, y, x)
			b <<= 1
			if t.coefficient(cd.u, cd.v) > 0 {
				b |= 1
			}
		}
		return b
	}

	var header [HeaderSize]byte
	for i := range header {
		header[i] = readByte()
	}
	length := uint64(binary.BigEndian.Uint32(header[:]))
	if (HeaderSize+length)*8 > uint64(capacity) {
		return nil, fmt.Errorf("%w: header announces %d bytes, cover %s holds %d", ErrCapacity, length, stego.Shape, MaxPayload(stego.Shape))
	}
	payload, err := utils.SafeMakeByteSlice(int(length), utils.MaxPayloadLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacity, err)
	}
	for i := range payload {
		payload[i] = readByte()
	}
	return payload, nil
}

func load(t *transformer, r *qsp.Raster, c, y, x int) {
	for i := 0; i < BlockSize; i++ {
		for j := 0; j < BlockSize; j++ {
			t.block.Set(i, j, float64(r.At(y+i, x+j, c)))
		}
	}
}

func store(t *transformer, r *qsp.Raster, c, y, x int) {
	for i := 0; i < BlockSize; i++ {
		for j := 0; j < BlockSize; j++ {
			v := math.Round(t.block.At(i, j))
			r.Set(y+i, x+j, c, uint8(math.Max(0, math.Min(255, v))))
		}
	}
}
