// Package sharing implements Asmuth-Bloom threshold sharing of image pixels
// over the Chinese Remainder Theorem, with an Arnold cat-map scrambler that
// decorrelates pixels before splitting.
package sharing

import (
	"fmt"
	"math/big"
	"sort"

	qsp "github.com/BackendStack21/qsp-go"
)

const (
	// MaxModulus keeps residues representable as uint16.
	MaxModulus = 1<<16 - 1

	// MaxShares bounds n.
	MaxShares = 255

	// candidateWindow is how far past the floor a batch may search.
	candidateWindow = 2000

	// floorStep advances the search floor after a batch fails the bound.
	floorStep = 13
)

var (
	// ErrInvalidModuli is returned for moduli violating the Asmuth-Bloom conditions.
	ErrInvalidModuli = fmt.Errorf("%w: invalid moduli", qsp.ErrValidation)

	// ErrInsufficientShares is returned when fewer than threshold shares are supplied.
	ErrInsufficientShares = fmt.Errorf("%w: insufficient shares", qsp.ErrValidation)

	// ErrShareMismatch is returned when supplied shares disagree with each other.
	ErrShareMismatch = fmt.Errorf("%w: share mismatch", qsp.ErrValidation)
)

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func coprimeWithAll(x int, set []int) bool {
	for _, m := range set {
		if gcd(x, m) != 1 {
			return false
		}
	}
	return true
}

func product(values []int) *big.Int {
	p := big.NewInt(1)
	for _, v := range values {
		p.Mul(p, big.NewInt(int64(v)))
	}
	return p
}

// satisfiesBound reports whether prod(t smallest) > pixelMax * prod(t-1 largest)
// for sorted moduli.
func satisfiesBound(sorted []int, t, pixelMax int) bool {
	low := product(sorted[:t])
	high := product(sorted[len(sorted)-(t-1):])
	high.Mul(high, big.NewInt(int64(pixelMax)))
	return low.Cmp(high) > 0
}

// GenerateModuli returns n sorted, pairwise-coprime moduli above
// max(pixelMax, secretModulus), each coprime with secretModulus, such that
// the product of the t smallest exceeds pixelMax times the product of the t-1
// largest. The search is greedy from a floor that advances until the bound
// holds.
func GenerateModuli(n, t, pixelMax, secretModulus int) ([]int, error) {
	if n < 1 || n > MaxShares {
		return nil, fmt.Errorf("%w: share count %d out of range [1, %d]", ErrInvalidModuli, n, MaxShares)
	}
	if t < 1 || t > n {
		return nil, fmt.Errorf("%w: threshold %d out of range [1, %d]", ErrInvalidModuli, t, n)
	}
	if pixelMax < 1 || secretModulus <= pixelMax {
		return nil, fmt.Errorf("%w: secret modulus %d must exceed pixel max %d", ErrInvalidModuli, secretModulus, pixelMax)
	}

	for floor := secretModulus + 1; floor+n <= MaxModulus; floor += floorStep {
		moduli := make([]int, 0, n)
		for c := floor; len(moduli) < n && c-floor <= candidateWindow && c <= MaxModulus; c++ {
			if gcd(c, secretModulus) == 1 && coprimeWithAll(c, moduli) {
				moduli = append(moduli, c)
			}
		}
		if len(moduli) < n {
			continue
		}
		sort.Ints(moduli)
		if satisfiesBound(moduli, t, pixelMax) {
			return moduli, nil
		}
	}
	return nil, fmt.Errorf("%w: no moduli below %d satisfy (n=%d, t=%d)", ErrInvalidModuli, MaxModulus, n, t)
}

// ValidateModuli checks a moduli set against the conditions GenerateModuli
// guarantees. The input need not be sorted.
func ValidateModuli(moduli []int, t, pixelMax, secretModulus int) error {
	if t < 1 || len(moduli) < t {
		return fmt.Errorf("%w: %d moduli for threshold %d", ErrInvalidModuli, len(moduli), t)
	}
	for i, m := range moduli {
		if m <= pixelMax || m > MaxModulus {
			return fmt.Errorf("%w: modulus %d out of range (%d, %d]", ErrInvalidModuli, m, pixelMax, MaxModulus)
		}
		if gcd(m, secretModulus) != 1 {
			return fmt.Errorf("%w: modulus %d shares a factor with %d", ErrInvalidModuli, m, secretModulus)
		}
		if !coprimeWithAll(m, moduli[:i]) {
			return fmt.Errorf("%w: modulus %d is not coprime with the others", ErrInvalidModuli, m)
		}
	}
	sorted := append([]int(nil), moduli...)
	sort.Ints(sorted)
	if !satisfiesBound(sorted, t, pixelMax) {
		return fmt.Errorf("%w: Asmuth-Bloom bound not met for t=%d", ErrInvalidModuli, t)
	}
	return nil
}

// SecretRange returns the product of the t smallest moduli. Blinded values
// must stay below it for any t shares to reconstruct them.
func SecretRange(moduli []int, t int) *big.Int {
	sorted := append([]int(nil), moduli...)
	sort.Ints(sorted)
	return product(sorted[:t])
}
