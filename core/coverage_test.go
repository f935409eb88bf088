package core

import (
	"testing"

	qsp "github.com/BackendStack21/qsp-go"
)

func TestValidateParams_Coverage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *qsp.Params)
	}{
		{"zero K", func(p *qsp.Params) { p.Lattice.K = 0 }},
		{"N not power of two", func(p *qsp.Params) { p.Lattice.N = 200 }},
		{"composite Q", func(p *qsp.Params) { p.Lattice.Q = 8380416 }},
		{"tau above N", func(p *qsp.Params) { p.Lattice.Tau = p.Lattice.N + 1 }},
		{"zero eta", func(p *qsp.Params) { p.Lattice.Eta = 0 }},
		{"beta above gamma2", func(p *qsp.Params) { p.Lattice.Beta = p.Lattice.Gamma2 }},
		{"gamma2 above gamma1", func(p *qsp.Params) { p.Lattice.Gamma2 = p.Lattice.Gamma1 }},
		{"gamma1 above Q/2", func(p *qsp.Params) { p.Lattice.Gamma1 = p.Lattice.Q }},
		{"zero attempts", func(p *qsp.Params) { p.Lattice.MaxSignAttempts = 0 }},
		{"negative slack", func(p *qsp.Params) { p.Lattice.VerifySlack = -1 }},
		{"zero pixel max", func(p *qsp.Params) { p.Sharing.PixelMax = 0 }},
		{"q0 not above pixel max", func(p *qsp.Params) { p.Sharing.SecretModulus = 255 }},
		{"negative iterations", func(p *qsp.Params) { p.Sharing.ScrambleIterations = -1 }},
		{"zero scramble a", func(p *qsp.Params) { p.Sharing.ScrambleA = 0 }},
		{"strength too small", func(p *qsp.Params) { p.Stego.Strength = MinStrength - 1 }},
		{"strength too large", func(p *qsp.Params) { p.Stego.Strength = MaxStrength + 1 }},
		{"DC coefficient", func(p *qsp.Params) { p.Stego.CoeffIndex = 0 }},
		{"coefficient out of block", func(p *qsp.Params) { p.Stego.CoeffIndex = 64 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams
			tt.mutate(&p)
			if err := ValidateParams(p); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestValidateParams_StrengthBounds(t *testing.T) {
	for _, k := range []int{MinStrength, MaxStrength} {
		p := DefaultParams
		p.Stego.Strength = k
		if err := ValidateParams(p); err != nil {
			t.Errorf("strength %d should be accepted: %v", k, err)
		}
	}
}
