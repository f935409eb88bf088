package qsp

import (
	"fmt"

	"github.com/BackendStack21/qsp-go/utils"
)

// =============================================================================
// Parameter Types
// =============================================================================

// LatticeParams contains the Module-LWE signature parameters.
type LatticeParams struct {
	N               int `json:"n" yaml:"n"`                                 // Ring degree (power of two)
	Q               int `json:"q" yaml:"q"`                                 // Prime modulus
	K               int `json:"k" yaml:"k"`                                 // Rows of A
	L               int `json:"l" yaml:"l"`                                 // Columns of A
	Eta             int `json:"eta" yaml:"eta"`                             // Secret coefficient bound
	Beta            int `json:"beta" yaml:"beta"`                           // Rejection margin
	Gamma1          int `json:"gamma1" yaml:"gamma1"`                       // Mask range
	Gamma2          int `json:"gamma2" yaml:"gamma2"`                       // Low-order rounding range
	Tau             int `json:"tau" yaml:"tau"`                             // Challenge weight
	VerifySlack     int `json:"verify_slack" yaml:"verify_slack"`           // Extra tolerance for single-party verify
	MaxSignAttempts int `json:"max_sign_attempts" yaml:"max_sign_attempts"` // Rejection loop bound
}

// Alpha returns the HighBits/LowBits decomposition base 2*Gamma2.
func (p LatticeParams) Alpha() int64 {
	return 2 * int64(p.Gamma2)
}

// SharingParams contains the CRT threshold sharing parameters.
type SharingParams struct {
	PixelMax           int `json:"pixel_max" yaml:"pixel_max"`                     // Largest secret value
	SecretModulus      int `json:"secret_modulus" yaml:"secret_modulus"`           // q0, the Asmuth-Bloom secret modulus
	ScrambleA          int `json:"scramble_a" yaml:"scramble_a"`                   // Arnold map parameter a
	ScrambleB          int `json:"scramble_b" yaml:"scramble_b"`                   // Arnold map parameter b
	ScrambleIterations int `json:"scramble_iterations" yaml:"scramble_iterations"` // Arnold map iterations
}

// StegoParams contains the DCT codec parameters.
type StegoParams struct {
	Strength   int `json:"strength" yaml:"strength"`       // Minimum coefficient magnitude k
	CoeffIndex int `json:"coeff_index" yaml:"coeff_index"` // Zig-zag index of the carrier coefficient
}

// Params is the complete parameter set of the pipeline.
type Params struct {
	Lattice LatticeParams `json:"lattice" yaml:"lattice"`
	Sharing SharingParams `json:"sharing" yaml:"sharing"`
	Stego   StegoParams   `json:"stego" yaml:"stego"`
}

// =============================================================================
// Polynomial Types
// =============================================================================

// Poly is an element of Z_Q[X]/(X^N+1). It always holds exactly N coefficients;
// the representation (canonical [0,Q) or centered) depends on context.
type Poly []int64

// PolyVec is a vector of polynomials.
type PolyVec []Poly

// PolyMatrix is a K x L matrix of polynomials.
type PolyMatrix [][]Poly

// NewPoly returns the zero polynomial of degree n.
func NewPoly(n int) Poly {
	return make(Poly, n)
}

// NewPolyVec returns a vector of size zero polynomials of degree n.
func NewPolyVec(size, n int) PolyVec {
	v := make(PolyVec, size)
	for i := range v {
		v[i] = NewPoly(n)
	}
	return v
}

// Clone returns a deep copy of the vector.
func (v PolyVec) Clone() PolyVec {
	out := make(PolyVec, len(v))
	for i, p := range v {
		out[i] = append(Poly(nil), p...)
	}
	return out
}

// =============================================================================
// Lattice Key Types
// =============================================================================

// PublicKey is a single-party lattice public key t = A*s1 + s2.
type PublicKey struct {
	Seed []byte  // Public seed expanding to A
	T    PolyVec // K polynomials
}

// SecretKey is a single-party lattice secret key.
type SecretKey struct {
	Seed []byte  // Public seed expanding to A
	S1   PolyVec // L polynomials, coefficients in [-eta, eta]
	S2   PolyVec // K polynomials, coefficients in [-eta, eta]
}

// KeyPair contains both public and secret keys.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

// GroupKey is the threshold group public key, the unreduced sum of every
// party's t_i under one shared seed.
type GroupKey struct {
	Seed []byte
	T    PolyVec
}

// PartyKey is one party's share of a threshold system.
type PartyKey struct {
	ID int
	KeyPair
}

// =============================================================================
// Signature Types
// =============================================================================

// Signature is a single-party signature carrying its explicit commitment.
type Signature struct {
	Z     PolyVec // y + c*s1 mod Q
	W     PolyVec // HighBits(A*y)
	CHash []byte  // SHA-256(message || W)
}

// Commitment is a signer's first-round message: its raw centered A*y.
type Commitment struct {
	PartyID int
	Ay      PolyVec
}

// Response is a signer's second-round message.
type Response struct {
	PartyID int
	Z       PolyVec
}

// ThresholdSignature is the aggregated signature of a signing quorum.
type ThresholdSignature struct {
	Z         PolyVec // Direct sum of accepted responses
	C         Poly    // Challenge, tau coefficients in {-1,+1}
	WSum      PolyVec // Centered sum of commitments
	Timestamp int64
	Signers   []int
}

// =============================================================================
// Image Types
// =============================================================================

// Shape is the (height, width, channels) of a raster.
type Shape struct {
	H int `json:"h"`
	W int `json:"w"`
	C int `json:"c"`
}

// Pixels returns H*W*C.
func (s Shape) Pixels() int {
	return s.H * s.W * s.C
}

// Validate checks that every dimension is positive, channels are 1, 3 or 4
// and the sample count fits utils.MaxRasterSamples. Pixels is only
// meaningful on a shape that validates.
func (s Shape) Validate() error {
	if s.H <= 0 || s.W <= 0 {
		return fmt.Errorf("%w: raster dimensions must be positive, got %dx%d", ErrValidation, s.H, s.W)
	}
	if s.C != 1 && s.C != 3 && s.C != 4 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrValidation, s.C)
	}
	total, err := utils.SafeMultiply3(s.H, s.W, s.C)
	if err != nil {
		return fmt.Errorf("%w: raster %dx%dx%d: %v", ErrValidation, s.H, s.W, s.C, err)
	}
	if total > utils.MaxRasterSamples {
		return fmt.Errorf("%w: raster %s has %d samples, limit %d", ErrValidation, s, total, utils.MaxRasterSamples)
	}
	return nil
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.H, s.W, s.C)
}

// Raster is an 8-bit image stored row-major with interleaved channels.
type Raster struct {
	Shape
	Pix []uint8
}

// NewRaster allocates a zero raster of the given shape.
func NewRaster(shape Shape) *Raster {
	return &Raster{Shape: shape, Pix: make([]uint8, shape.Pixels())}
}

// Offset returns the index of (y, x, c) in Pix.
func (r *Raster) Offset(y, x, c int) int {
	return (y*r.W+x)*r.C + c
}

// At returns the sample at (y, x, c).
func (r *Raster) At(y, x, c int) uint8 {
	return r.Pix[r.Offset(y, x, c)]
}

// Set stores the sample at (y, x, c).
func (r *Raster) Set(y, x, c int, v uint8) {
	r.Pix[r.Offset(y, x, c)] = v
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	return &Raster{Shape: r.Shape, Pix: append([]uint8(nil), r.Pix...)}
}

// Validate checks the shape and the backing slice length.
func (r *Raster) Validate() error {
	if err := r.Shape.Validate(); err != nil {
		return err
	}
	if len(r.Pix) != r.Pixels() {
		return fmt.Errorf("%w: raster has %d samples, shape %s needs %d",
			ErrValidation, len(r.Pix), r.Shape, r.Pixels())
	}
	return nil
}

// =============================================================================
// Share Types
// =============================================================================

// SharePayload is one CRT share of a (scrambled) secret image.
type SharePayload struct {
	Index         int      // 1-based share index
	Modulus       int      // m_i
	Shape         Shape    // Shape of the scrambled square raster
	OriginalShape Shape    // Shape before padding to a square
	Data          []uint16 // Residues, each < Modulus
	Signature     []byte   // Optional dealer signature over the secret
}

// Validate checks the payload's internal consistency.
func (p *SharePayload) Validate() error {
	if p.Index <= 0 {
		return fmt.Errorf("%w: share index must be positive", ErrValidation)
	}
	if p.Modulus < 2 || p.Modulus > 1<<16 {
		return fmt.Errorf("%w: share modulus %d out of range", ErrValidation, p.Modulus)
	}
	if err := p.Shape.Validate(); err != nil {
		return err
	}
	if err := p.OriginalShape.Validate(); err != nil {
		return err
	}
	if p.OriginalShape.H > p.Shape.H || p.OriginalShape.W > p.Shape.W || p.OriginalShape.C != p.Shape.C {
		return fmt.Errorf("%w: original shape %s does not fit %s", ErrValidation, p.OriginalShape, p.Shape)
	}
	if len(p.Data) != p.Shape.Pixels() {
		return fmt.Errorf("%w: share has %d residues, shape %s needs %d",
			ErrValidation, len(p.Data), p.Shape, p.Shape.Pixels())
	}
	for _, v := range p.Data {
		if int(v) >= p.Modulus {
			return fmt.Errorf("%w: residue %d not below modulus %d", ErrValidation, v, p.Modulus)
		}
	}
	return nil
}

// =============================================================================
// Manifest Types
// =============================================================================

// RegistryEntry binds one stego carrier to its share and owner.
type RegistryEntry struct {
	ShareIndex       int    `json:"share_index"`
	Modulus          int    `json:"modulus"`
	CarrierFile      string `json:"carrier_file"`
	ShareFingerprint string `json:"share_fingerprint"`
	OwnerFingerprint string `json:"owner_pk_fingerprint"`
	OwnerAlias       string `json:"owner_alias"`
}

// Manifest describes a locked asset.
type Manifest struct {
	Version           string          `json:"version"`
	Threshold         int             `json:"threshold"`
	TotalShares       int             `json:"total_shares"`
	PublicSeed        string          `json:"public_seed"`
	DealerFingerprint string          `json:"dealer_pk_fingerprint,omitempty"`
	CreatedAt         string          `json:"created_at"`
	Registry          []RegistryEntry `json:"registry"`
}

// Entry returns the registry entry for a carrier file name.
func (m *Manifest) Entry(carrier string) (RegistryEntry, bool) {
	for _, e := range m.Registry {
		if e.CarrierFile == carrier {
			return e, true
		}
	}
	return RegistryEntry{}, false
}
