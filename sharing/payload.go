package sharing

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

// PayloadMagic prefixes every encoded share.
var PayloadMagic = [4]byte{'Q', 'S', 'P', 'S'}

// PayloadVersion is the current share encoding version.
const PayloadVersion = 1

// ErrPayloadFormat is returned for share bytes that cannot be decoded.
var ErrPayloadFormat = fmt.Errorf("%w: malformed share payload", qsp.ErrValidation)

// wireShare is the CBOR body. Residues are packed little-endian so the
// compressor sees a byte stream rather than a CBOR array.
type wireShare struct {
	Index     int    `cbor:"1,keyasint"`
	Modulus   int    `cbor:"2,keyasint"`
	Shape     [3]int `cbor:"3,keyasint"`
	Original  [3]int `cbor:"4,keyasint"`
	Residues  []byte `cbor:"5,keyasint"`
	Signature []byte `cbor:"6,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 16,
	}).DecMode(); err != nil {
		panic(err)
	}
}

// EncodePayload serializes a share as magic || version || zlib(CBOR body).
// The encoding is deterministic, so equal shares have equal fingerprints.
func EncodePayload(p *qsp.SharePayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	residues := make([]byte, 2*len(p.Data))
	for i, v := range p.Data {
		binary.LittleEndian.PutUint16(residues[2*i:], v)
	}
	body, err := encMode.Marshal(wireShare{
		Index:     p.Index,
		Modulus:   p.Modulus,
		Shape:     [3]int{p.Shape.H, p.Shape.W, p.Shape.C},
		Original:  [3]int{p.OriginalShape.H, p.OriginalShape.W, p.OriginalShape.C},
		Residues:  residues,
		Signature: p.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode share: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(PayloadMagic[:])
	buf.WriteByte(PayloadVersion)
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("failed to compress share: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress share: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePayload parses bytes written by EncodePayload and validates the result.
func DecodePayload(data []byte) (*qsp.SharePayload, error) {
	if len(data) < len(PayloadMagic)+1 || !bytes.Equal(data[:len(PayloadMagic)], PayloadMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrPayloadFormat)
	}
	if v := data[len(PayloadMagic)]; v != PayloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrPayloadFormat, v)
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[len(PayloadMagic)+1:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	defer zr.Close()
	body, err := io.ReadAll(io.LimitReader(zr, utils.MaxPayloadLength+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	if len(body) > utils.MaxPayloadLength {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrPayloadFormat, utils.MaxPayloadLength)
	}

	var w wireShare
	if err := decMode.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	if len(w.Residues)%2 != 0 {
		return nil, fmt.Errorf("%w: odd residue length", ErrPayloadFormat)
	}
	residues, err := utils.SafeMakeUint16Slice(len(w.Residues)/2, utils.MaxRasterSamples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	p := &qsp.SharePayload{
		Index:         w.Index,
		Modulus:       w.Modulus,
		Shape:         qsp.Shape{H: w.Shape[0], W: w.Shape[1], C: w.Shape[2]},
		OriginalShape: qsp.Shape{H: w.Original[0], W: w.Original[1], C: w.Original[2]},
		Data:          residues,
		Signature:     w.Signature,
	}
	for i := range p.Data {
		p.Data[i] = binary.LittleEndian.Uint16(w.Residues[2*i:])
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Fingerprint returns the hex SHA-256 of encoded share bytes.
func Fingerprint(data []byte) string {
	return hex.EncodeToString(utils.SHA256(data))
}
