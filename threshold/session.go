package threshold

import (
	"context"
	"errors"
	"fmt"
	"time"

	qsp "github.com/BackendStack21/qsp-go"
)

// Session drives a quorum of signers through repeated two-round attempts
// until every party accepts or the attempt budget is spent.
type Session struct {
	Aggregator  *Aggregator
	Signers     []*Signer
	MaxAttempts int

	// Clock supplies the per-attempt timestamp. Defaults to time.Now.
	Clock func() time.Time

	attempts int
}

// Attempts returns the number of attempts made by the last Run.
func (s *Session) Attempts() int { return s.attempts }

// Run signs message. Every rejection restarts all parties with fresh masks.
// The context is only checked between attempts.
func (s *Session) Run(ctx context.Context, message []byte) (*qsp.ThresholdSignature, error) {
	if s.Aggregator == nil {
		return nil, fmt.Errorf("%w: session has no aggregator", qsp.ErrValidation)
	}
	if len(s.Signers) < s.Aggregator.Threshold() {
		return nil, fmt.Errorf("%w: %d signers, need %d", ErrInsufficientResponses, len(s.Signers), s.Aggregator.Threshold())
	}
	if s.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: max attempts must be positive", qsp.ErrValidation)
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}

	s.attempts = 0
	defer s.resetAll()
	for s.attempts < s.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.attempts++
		sig, err := s.attempt(message, clock().UnixNano())
		if err == nil {
			return sig, nil
		}
		if !errors.Is(err, qsp.ErrRejected) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, s.attempts)
}

func (s *Session) attempt(message []byte, timestamp int64) (*qsp.ThresholdSignature, error) {
	s.resetAll()

	commitments := make([]qsp.Commitment, 0, len(s.Signers))
	for _, signer := range s.Signers {
		c, err := signer.Commit(timestamp)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, *c)
	}
	wSum, err := s.Aggregator.AggregateCommitments(commitments)
	if err != nil {
		return nil, err
	}

	responses := make([]qsp.Response, 0, len(s.Signers))
	for _, signer := range s.Signers {
		r, err := signer.Respond(wSum, message)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *r)
	}
	return s.Aggregator.Finalize(wSum, responses, message, timestamp)
}

func (s *Session) resetAll() {
	for _, signer := range s.Signers {
		signer.Reset()
	}
}

// RunSession is a convenience wrapper around Session.Run.
func RunSession(ctx context.Context, signers []*Signer, agg *Aggregator, message []byte, maxAttempts int) (*qsp.ThresholdSignature, int, error) {
	s := &Session{Aggregator: agg, Signers: signers, MaxAttempts: maxAttempts}
	sig, err := s.Run(ctx, message)
	return sig, s.Attempts(), err
}
