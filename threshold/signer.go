// Package threshold implements the two-round threshold lattice signature.
//
// Round one: every signer samples a short mask y_i and publishes A*y_i.
// The aggregator sums the commitments into W. Round two: every signer derives
// the challenge c from HighBits(W), the message and the session timestamp,
// and answers z_i = y_i + c*s1_i subject to rejection sampling. A single
// rejection restarts the whole quorum with fresh masks.
package threshold

import (
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/utils"
)

// State is a signer's position in the protocol.
type State int

const (
	// StateInit is a signer with no live mask.
	StateInit State = iota
	// StateCommitted is a signer holding a mask whose commitment was sent.
	StateCommitted
	// StateAccepted is a signer whose response passed both rejection checks.
	StateAccepted
	// StateRejected is a signer whose response failed a rejection check.
	// It must be reset before committing again.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateCommitted:
		return "committed"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Signer holds one party's per-session protocol state. A Signer is not safe
// for concurrent use.
type Signer struct {
	ring      *mlwe.Ring
	key       qsp.PartyKey
	A         qsp.PolyMatrix
	state     State
	y         qsp.PolyVec
	ay        qsp.PolyVec
	timestamp int64
}

// NewSigner prepares a signer for the given party key.
func NewSigner(r *mlwe.Ring, key qsp.PartyKey) (*Signer, error) {
	p := r.Params()
	if err := r.CheckVec(key.SecretKey.S1, p.L); err != nil {
		return nil, fmt.Errorf("party %d s1: %w", key.ID, err)
	}
	if err := r.CheckVec(key.SecretKey.S2, p.K); err != nil {
		return nil, fmt.Errorf("party %d s2: %w", key.ID, err)
	}
	A, err := r.ExpandMatrix(key.SecretKey.Seed)
	if err != nil {
		return nil, err
	}
	return &Signer{ring: r, key: key, A: A}, nil
}

// ID returns the party identifier.
func (s *Signer) ID() int { return s.key.ID }

// State returns the current protocol state.
func (s *Signer) State() State { return s.state }

// Reset discards any mask and returns the signer to StateInit.
func (s *Signer) Reset() {
	s.wipe()
	s.ay = nil
	s.state = StateInit
}

func (s *Signer) wipe() {
	for _, p := range s.y {
		utils.ZeroizeInt64(p)
	}
	s.y = nil
}

// Commit samples a fresh mask y with coefficients in [-gamma1/8, gamma1/8]
// and returns the centered commitment A*y.
func (s *Signer) Commit(timestamp int64) (*qsp.Commitment, error) {
	if s.state != StateInit {
		return nil, fmt.Errorf("%w: commit from state %s", ErrInvalidState, s.state)
	}
	p := s.ring.Params()
	y, err := s.ring.SamplePolyVec(p.L, p.Gamma1>>3)
	if err != nil {
		return nil, err
	}
	s.y = y
	s.ay = s.ring.CenterVec(s.ring.MatVecMul(s.A, y))
	s.timestamp = timestamp
	s.state = StateCommitted
	return &qsp.Commitment{PartyID: s.key.ID, Ay: s.ay.Clone()}, nil
}

// Respond answers the aggregated commitment. A rejection moves the signer to
// StateRejected and returns an error wrapping qsp.ErrRejected.
func (s *Signer) Respond(wSum qsp.PolyVec, message []byte) (*qsp.Response, error) {
	if s.state != StateCommitted {
		return nil, fmt.Errorf("%w: respond from state %s", ErrInvalidState, s.state)
	}
	p := s.ring.Params()
	if err := s.ring.CheckVec(wSum, p.K); err != nil {
		return nil, err
	}
	alpha := p.Alpha()

	c := DeriveChallenge(p, message, s.ring.HighBitsVec(wSum, alpha), s.timestamp)
	z := s.ring.AddVec(s.y, s.ring.MulPolyVec(c, s.key.SecretKey.S1))
	s.wipe()

	if norm := mlwe.VecInfNorm(s.ring.CenterVec(z)); norm >= int64(p.Gamma1-p.Beta) {
		s.state = StateRejected
		return nil, fmt.Errorf("%w: party %d response norm %d", ErrNormBound, s.key.ID, norm)
	}

	r := s.ring.SubVec(s.ay, s.ring.MulPolyVec(c, s.key.SecretKey.S2))
	if low := mlwe.VecInfNorm(s.ring.LowBitsVec(r, alpha)); low >= int64(p.Gamma2-p.Beta) {
		s.state = StateRejected
		return nil, fmt.Errorf("%w: party %d low bits %d", ErrLowBits, s.key.ID, low)
	}

	s.state = StateAccepted
	return &qsp.Response{PartyID: s.key.ID, Z: z}, nil
}
