package threshold

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/utils"
)

var (
	// ErrInvalidState is returned when a signer is driven out of order.
	ErrInvalidState = fmt.Errorf("%w: invalid signer state", qsp.ErrValidation)

	// ErrInsufficientResponses is returned when fewer than threshold parties answer.
	ErrInsufficientResponses = fmt.Errorf("%w: insufficient responses", qsp.ErrValidation)

	// ErrDuplicateParty is returned when a party contributes twice.
	ErrDuplicateParty = fmt.Errorf("%w: duplicate party", qsp.ErrValidation)

	// ErrNormBound is a rejection on the response norm.
	ErrNormBound = fmt.Errorf("%w: norm bound", qsp.ErrRejected)

	// ErrLowBits is a rejection on the low-order bits of A*y - c*s2.
	ErrLowBits = fmt.Errorf("%w: low bits bound", qsp.ErrRejected)

	// ErrAttemptsExhausted is returned when every attempt was rejected.
	ErrAttemptsExhausted = fmt.Errorf("%w: signing attempts exhausted", qsp.ErrRejected)
)

// Aggregator combines commitments and responses and verifies the result.
// It is stateless and safe for concurrent use.
type Aggregator struct {
	ring      *mlwe.Ring
	threshold int
}

// NewAggregator creates an aggregator requiring at least threshold parties.
func NewAggregator(r *mlwe.Ring, threshold int) (*Aggregator, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: threshold must be positive", qsp.ErrValidation)
	}
	return &Aggregator{ring: r, threshold: threshold}, nil
}

// Threshold returns the minimum quorum size.
func (a *Aggregator) Threshold() int { return a.threshold }

// AggregateCommitments sums the commitments and centers the result mod Q.
func (a *Aggregator) AggregateCommitments(commitments []qsp.Commitment) (qsp.PolyVec, error) {
	if len(commitments) < a.threshold {
		return nil, fmt.Errorf("%w: %d commitments, need %d", ErrInsufficientResponses, len(commitments), a.threshold)
	}
	p := a.ring.Params()
	seen := make(map[int]bool, len(commitments))
	sum := qsp.NewPolyVec(p.K, p.N)
	for _, c := range commitments {
		if seen[c.PartyID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateParty, c.PartyID)
		}
		seen[c.PartyID] = true
		if err := a.ring.CheckVec(c.Ay, p.K); err != nil {
			return nil, fmt.Errorf("party %d commitment: %w", c.PartyID, err)
		}
		mlwe.AddVecRaw(sum, c.Ay)
	}
	return a.ring.CenterVec(sum), nil
}

// AggregateResponses sums the responses directly, without reduction.
func (a *Aggregator) AggregateResponses(responses []qsp.Response) (qsp.PolyVec, error) {
	if len(responses) < a.threshold {
		return nil, fmt.Errorf("%w: %d responses, need %d", ErrInsufficientResponses, len(responses), a.threshold)
	}
	p := a.ring.Params()
	seen := make(map[int]bool, len(responses))
	sum := qsp.NewPolyVec(p.L, p.N)
	for _, r := range responses {
		if seen[r.PartyID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateParty, r.PartyID)
		}
		seen[r.PartyID] = true
		if err := a.ring.CheckVec(r.Z, p.L); err != nil {
			return nil, fmt.Errorf("party %d response: %w", r.PartyID, err)
		}
		mlwe.AddVecRaw(sum, r.Z)
	}
	return sum, nil
}

// DeriveChallenge hashes message || int32LE(highBits) || uint64LE(timestamp)
// with SHAKE256 into N/2 bytes. Each byte b selects position b mod N; a free
// position becomes +1 when b is odd and -1 otherwise, until Tau positions are
// set or the bytes run out.
func DeriveChallenge(p qsp.LatticeParams, message []byte, highBits qsp.PolyVec, timestamp int64) qsp.Poly {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(timestamp))
	digest := utils.Shake256Concat(p.N/2, message, mlwe.EncodeInt32LE(highBits), ts[:])

	c := qsp.NewPoly(p.N)
	weight := 0
	for _, b := range digest {
		if weight >= p.Tau {
			break
		}
		idx := int(b) % p.N
		if c[idx] != 0 {
			continue
		}
		if b&1 == 1 {
			c[idx] = 1
		} else {
			c[idx] = -1
		}
		weight++
	}
	return c
}

// Finalize assembles a threshold signature from one completed round.
func (a *Aggregator) Finalize(wSum qsp.PolyVec, responses []qsp.Response, message []byte, timestamp int64) (*qsp.ThresholdSignature, error) {
	z, err := a.AggregateResponses(responses)
	if err != nil {
		return nil, err
	}
	p := a.ring.Params()
	signers := make([]int, len(responses))
	for i, r := range responses {
		signers[i] = r.PartyID
	}
	sort.Ints(signers)
	return &qsp.ThresholdSignature{
		Z:         z,
		C:         DeriveChallenge(p, message, a.ring.HighBitsVec(wSum, p.Alpha()), timestamp),
		WSum:      wSum,
		Timestamp: timestamp,
		Signers:   signers,
	}, nil
}

// Verify checks the aggregated response norm and that the challenge is the
// hash of HighBits(WSum). WSum is supplied by the signers, so this check alone
// does not bind the signature to the group key; use VerifyAlgebraic when the
// signers' summed public key is known.
func (a *Aggregator) Verify(group *qsp.GroupKey, message []byte, sig *qsp.ThresholdSignature) bool {
	if group == nil || sig == nil {
		return false
	}
	p := a.ring.Params()
	if a.ring.CheckVec(group.T, p.K) != nil {
		return false
	}
	return a.verifyTranscript(message, sig) == nil
}

func (a *Aggregator) verifyTranscript(message []byte, sig *qsp.ThresholdSignature) error {
	p := a.ring.Params()
	if len(sig.Signers) < a.threshold {
		return ErrInsufficientResponses
	}
	if a.ring.CheckVec(sig.Z, p.L) != nil || a.ring.CheckVec(sig.WSum, p.K) != nil || len(sig.C) != p.N {
		return errors.New("malformed signature")
	}
	if norm := mlwe.VecInfNorm(a.ring.CenterVec(sig.Z)); norm >= int64(p.Gamma1-p.Beta) {
		return fmt.Errorf("response norm %d too large", norm)
	}
	expected := DeriveChallenge(p, message, a.ring.HighBitsVec(sig.WSum, p.Alpha()), sig.Timestamp)
	for i := range expected {
		if expected[i] != sig.C[i] {
			return errors.New("challenge mismatch")
		}
	}
	return nil
}

// VerifyAlgebraic runs Verify and additionally checks that
// A*Z - c*T_S - WSum is congruent to a vector bounded by |S|*Tau*Eta, where
// T_S is the unreduced sum of the signers' public keys. For honest
// signatures the difference equals -c*sum(s2_i).
func (a *Aggregator) VerifyAlgebraic(seed []byte, signersKey qsp.PolyVec, message []byte, sig *qsp.ThresholdSignature) bool {
	if sig == nil {
		return false
	}
	p := a.ring.Params()
	if a.ring.CheckVec(signersKey, p.K) != nil {
		return false
	}
	if a.verifyTranscript(message, sig) != nil {
		return false
	}
	A, err := a.ring.ExpandMatrix(seed)
	if err != nil {
		return false
	}

	az := a.ring.MatVecMul(A, sig.Z)
	ct := a.ring.MulPolyVec(sig.C, signersKey)
	diff := a.ring.CenterVec(a.ring.SubVec(a.ring.SubVec(az, ct), sig.WSum))

	bound := int64(len(sig.Signers)) * int64(p.Tau) * int64(p.Eta)
	return mlwe.VecInfNorm(diff) <= bound
}
