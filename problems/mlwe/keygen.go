package mlwe

import (
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

// SeedSize is the length of freshly generated public seeds.
const SeedSize = 32

// MaxParties bounds SetupSystem.
const MaxParties = 255

// SamplePoly samples a polynomial with coefficients uniform in [-eta, eta].
func (r *Ring) SamplePoly(eta int) (qsp.Poly, error) {
	coeffs, err := utils.SampleUniformBounded(r.n, -int64(eta), int64(eta))
	if err != nil {
		return nil, fmt.Errorf("failed to sample polynomial: %w", err)
	}
	return coeffs, nil
}

// SamplePolyVec samples size polynomials with coefficients in [-bound, bound].
func (r *Ring) SamplePolyVec(size, bound int) (qsp.PolyVec, error) {
	v := make(qsp.PolyVec, size)
	for i := range v {
		p, err := r.SamplePoly(bound)
		if err != nil {
			return nil, err
		}
		v[i] = p
	}
	return v, nil
}

// GenerateKeyPair generates a key pair under a fresh public seed.
func GenerateKeyPair(r *Ring) (*qsp.KeyPair, error) {
	seed, err := utils.SecureRandomBytes(SeedSize)
	if err != nil {
		return nil, err
	}
	return GenerateKeyPairFromSeed(r, seed)
}

// GenerateKeyPairFromSeed generates fresh secrets (s1, s2) under the given
// public seed and computes t = A*s1 + s2 mod Q. Parties sharing a seed share A.
func GenerateKeyPairFromSeed(r *Ring, seed []byte) (*qsp.KeyPair, error) {
	if err := utils.ValidateSeedEntropy(seed); err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrValidation, err)
	}
	A, err := r.ExpandMatrix(seed)
	if err != nil {
		return nil, err
	}

	p := r.params
	s1, err := r.SamplePolyVec(p.L, p.Eta)
	if err != nil {
		return nil, err
	}
	s2, err := r.SamplePolyVec(p.K, p.Eta)
	if err != nil {
		return nil, err
	}

	t := r.MatVecMul(A, s1)
	for i := range t {
		t[i] = r.Add(t[i], s2[i])
	}

	pubSeed := append([]byte(nil), seed...)
	return &qsp.KeyPair{
		PublicKey: qsp.PublicKey{Seed: pubSeed, T: t},
		SecretKey: qsp.SecretKey{Seed: pubSeed, S1: s1, S2: s2},
	}, nil
}

// SetupSystem is a trusted-dealer setup: one shared public seed and an
// independent key pair per party. The group key is the unreduced sum of the
// parties' t_i.
func SetupSystem(r *Ring, nParties int) (*qsp.GroupKey, []qsp.PartyKey, error) {
	if nParties < 1 || nParties > MaxParties {
		return nil, nil, fmt.Errorf("%w: party count must be in [1, %d]", qsp.ErrValidation, MaxParties)
	}
	seed, err := utils.SecureRandomBytes(SeedSize)
	if err != nil {
		return nil, nil, err
	}

	group := &qsp.GroupKey{
		Seed: seed,
		T:    qsp.NewPolyVec(r.params.K, r.n),
	}
	parties := make([]qsp.PartyKey, nParties)
	for i := range parties {
		kp, err := GenerateKeyPairFromSeed(r, seed)
		if err != nil {
			return nil, nil, fmt.Errorf("party %d: %w", i+1, err)
		}
		parties[i] = qsp.PartyKey{ID: i + 1, KeyPair: *kp}
		AddVecRaw(group.T, kp.PublicKey.T)
	}
	return group, parties, nil
}

// SubsetKey returns the unreduced sum of the public keys of the listed parties.
func SubsetKey(r *Ring, keys map[int]qsp.PublicKey, ids []int) (qsp.PolyVec, error) {
	sum := qsp.NewPolyVec(r.params.K, r.n)
	for _, id := range ids {
		pk, ok := keys[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown party %d", qsp.ErrValidation, id)
		}
		if err := r.CheckVec(pk.T, r.params.K); err != nil {
			return nil, err
		}
		AddVecRaw(sum, pk.T)
	}
	return sum, nil
}

// PublicKeys indexes the public halves of party keys by ID.
func PublicKeys(parties []qsp.PartyKey) map[int]qsp.PublicKey {
	out := make(map[int]qsp.PublicKey, len(parties))
	for _, p := range parties {
		out[p.ID] = p.PublicKey
	}
	return out
}
