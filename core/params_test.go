package core

import (
	"errors"
	"testing"

	qsp "github.com/BackendStack21/qsp-go"
)

func TestGetParams(t *testing.T) {
	params := GetParams()
	if params.Lattice.Q != 8380417 {
		t.Errorf("Expected Q=8380417, got %d", params.Lattice.Q)
	}
	if params.Lattice.Gamma2 != (params.Lattice.Q-1)/8 {
		t.Errorf("Expected gamma2=(Q-1)/8, got %d", params.Lattice.Gamma2)
	}
	if params.Sharing.SecretModulus != 257 {
		t.Errorf("Expected q0=257, got %d", params.Sharing.SecretModulus)
	}

	// Mutating the copy must not leak into the defaults
	params.Lattice.N = 1
	if DefaultParams.Lattice.N != 256 {
		t.Error("GetParams returned a shared value")
	}
}

func TestValidateParams(t *testing.T) {
	if err := ValidateParams(DefaultParams); err != nil {
		t.Fatalf("ValidateParams failed for valid params: %v", err)
	}

	invalid := DefaultParams
	invalid.Lattice.N = 0
	err := ValidateParams(invalid)
	if err == nil {
		t.Fatal("ValidateParams should reject N=0")
	}
	if !errors.Is(err, qsp.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNTTFriendly(t *testing.T) {
	if !NTTFriendly(DefaultParams.Lattice) {
		t.Error("default modulus should support a 512-th root of unity")
	}
	p := DefaultParams.Lattice
	p.Q = 8380427
	if NTTFriendly(p) {
		t.Error("Q=8380427 is not 1 mod 512")
	}
}

func TestIsPrime(t *testing.T) {
	primes := []int{2, 3, 5, 257, 7681, 12289, 8380417}
	for _, p := range primes {
		if !isPrime(p) {
			t.Errorf("%d should be prime", p)
		}
	}
	composites := []int{0, 1, 4, 255, 8380416}
	for _, c := range composites {
		if isPrime(c) {
			t.Errorf("%d should not be prime", c)
		}
	}
}
