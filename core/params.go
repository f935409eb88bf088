// Package core provides the parameter set and validation for qsp.
package core

import (
	"errors"
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
)

const (
	// MinStrength and MaxStrength bound the DCT embedding strength k.
	MinStrength = 5
	MaxStrength = 128
)

// DefaultParams is the reference parameter set.
var DefaultParams = qsp.Params{
	Lattice: qsp.LatticeParams{
		N:               256,
		Q:               8380417,
		K:               2,
		L:               2,
		Eta:             2,
		Beta:            250,
		Gamma1:          (8380417 - 1) / 2,
		Gamma2:          (8380417 - 1) / 8,
		Tau:             39,
		VerifySlack:     500,
		MaxSignAttempts: 64,
	},
	Sharing: qsp.SharingParams{
		PixelMax:           255,
		SecretModulus:      257,
		ScrambleA:          1,
		ScrambleB:          1,
		ScrambleIterations: 10,
	},
	Stego: qsp.StegoParams{
		Strength:   25,
		CoeffIndex: 14,
	},
}

// GetParams returns a copy of the default parameter set.
func GetParams() qsp.Params {
	return DefaultParams
}

// ValidateParams validates the parameter set for consistency.
func ValidateParams(params qsp.Params) error {
	if err := validateLattice(params.Lattice); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrValidation, err)
	}
	if err := validateSharing(params.Sharing); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrValidation, err)
	}
	if err := validateStego(params.Stego); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrValidation, err)
	}
	return nil
}

func validateLattice(p qsp.LatticeParams) error {
	if p.N <= 0 || p.K <= 0 || p.L <= 0 {
		return errors.New("lattice dimensions must be positive")
	}
	if p.N&(p.N-1) != 0 {
		return errors.New("ring degree must be a power of two")
	}
	if !isPrime(p.Q) {
		return errors.New("lattice modulus must be prime")
	}
	if p.Tau <= 0 || p.Tau > p.N {
		return errors.New("challenge weight must be in [1, N]")
	}
	if p.Eta <= 0 {
		return errors.New("eta must be positive")
	}
	if p.Beta <= 0 || p.Beta >= p.Gamma2 {
		return errors.New("beta must be in (0, gamma2)")
	}
	if p.Gamma2 >= p.Gamma1 || p.Gamma1 > p.Q/2 {
		return errors.New("gamma bounds must satisfy gamma2 < gamma1 <= Q/2")
	}
	if p.MaxSignAttempts <= 0 {
		return errors.New("max sign attempts must be positive")
	}
	if p.VerifySlack < 0 {
		return errors.New("verify slack cannot be negative")
	}
	return nil
}

func validateSharing(p qsp.SharingParams) error {
	if p.PixelMax <= 0 {
		return errors.New("pixel max must be positive")
	}
	if p.SecretModulus <= p.PixelMax {
		return errors.New("secret modulus must exceed pixel max")
	}
	if p.ScrambleIterations < 0 {
		return errors.New("scramble iterations cannot be negative")
	}
	if p.ScrambleA <= 0 || p.ScrambleB <= 0 {
		return errors.New("scramble parameters must be positive")
	}
	return nil
}

func validateStego(p qsp.StegoParams) error {
	if p.Strength < MinStrength || p.Strength > MaxStrength {
		return fmt.Errorf("embedding strength must be in [%d, %d]", MinStrength, MaxStrength)
	}
	if p.CoeffIndex < 1 || p.CoeffIndex > 63 {
		return errors.New("coefficient index must be an AC coefficient in [1, 63]")
	}
	return nil
}

// NTTFriendly reports whether Q = 1 (mod 2N), so the negacyclic NTT exists.
func NTTFriendly(p qsp.LatticeParams) bool {
	return p.N > 0 && (p.Q-1)%(2*p.N) == 0
}

// isPrime checks if a number is prime using a simple trial division.
// This is used for validating parameters, not for generating large primes.
func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n == 2 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}
