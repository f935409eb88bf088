package mlwe

import (
	"bytes"
	"testing"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

func TestExpandMatrix_Deterministic(t *testing.T) {
	r := newTestRing(t)
	seed, _ := utils.SecureRandomBytes(SeedSize)

	A1, err := r.ExpandMatrix(seed)
	if err != nil {
		t.Fatalf("ExpandMatrix failed: %v", err)
	}
	A2, _ := r.ExpandMatrix(seed)

	p := r.Params()
	if len(A1) != p.K || len(A1[0]) != p.L {
		t.Fatalf("matrix is %dx%d, want %dx%d", len(A1), len(A1[0]), p.K, p.L)
	}
	for i := range A1 {
		for j := range A1[i] {
			if !polyEqual(A1[i][j], A2[i][j]) {
				t.Fatalf("cell (%d,%d) not deterministic", i, j)
			}
			for _, c := range A1[i][j] {
				if c < 0 || c >= r.Q() {
					t.Fatalf("coefficient %d out of [0, Q)", c)
				}
			}
		}
	}
	if polyEqual(A1[0][0], A1[0][1]) {
		t.Error("distinct cells should differ")
	}

	other, _ := utils.SecureRandomBytes(SeedSize)
	A3, _ := r.ExpandMatrix(other)
	if polyEqual(A1[0][0], A3[0][0]) {
		t.Error("different seeds produced the same matrix")
	}
}

func TestExpandMatrix_EmptySeed(t *testing.T) {
	r := newTestRing(t)
	if _, err := r.ExpandMatrix(nil); err == nil {
		t.Error("expected error for empty seed")
	}
}

func TestGenerateKeyPair(t *testing.T) {
	r := newTestRing(t)
	kp, err := GenerateKeyPair(r)
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	p := r.Params()
	if VecInfNorm(kp.SecretKey.S1) > int64(p.Eta) || VecInfNorm(kp.SecretKey.S2) > int64(p.Eta) {
		t.Error("secret coefficients exceed eta")
	}

	A, _ := r.ExpandMatrix(kp.PublicKey.Seed)
	want := r.AddVec(r.MatVecMul(A, kp.SecretKey.S1), kp.SecretKey.S2)
	for i := range want {
		if !polyEqual(kp.PublicKey.T[i], want[i]) {
			t.Fatalf("t[%d] != A*s1 + s2", i)
		}
	}
}

func TestGenerateKeyPairFromSeed_WeakSeed(t *testing.T) {
	r := newTestRing(t)
	if _, err := GenerateKeyPairFromSeed(r, make([]byte, SeedSize)); err == nil {
		t.Error("expected error for all-zero seed")
	}
	if _, err := GenerateKeyPairFromSeed(r, []byte("short")); err == nil {
		t.Error("expected error for short seed")
	}
}

func TestGenerateKeyPairFromSeed_FreshSecrets(t *testing.T) {
	r := newTestRing(t)
	seed, _ := utils.SecureRandomBytes(SeedSize)
	kp1, err := GenerateKeyPairFromSeed(r, seed)
	if err != nil {
		t.Fatal(err)
	}
	kp2, _ := GenerateKeyPairFromSeed(r, seed)
	if !bytes.Equal(kp1.PublicKey.Seed, kp2.PublicKey.Seed) {
		t.Error("public seed should be shared")
	}
	if polyEqual(kp1.SecretKey.S1[0], kp2.SecretKey.S1[0]) {
		t.Error("secrets should be sampled independently")
	}
}

func TestSetupSystem(t *testing.T) {
	r := newTestRing(t)
	group, parties, err := SetupSystem(r, 3)
	if err != nil {
		t.Fatalf("SetupSystem failed: %v", err)
	}
	if len(parties) != 3 {
		t.Fatalf("expected 3 parties, got %d", len(parties))
	}

	sum := qsp.NewPolyVec(r.Params().K, r.N())
	for i, p := range parties {
		if p.ID != i+1 {
			t.Errorf("party %d has ID %d", i, p.ID)
		}
		if !bytes.Equal(p.PublicKey.Seed, group.Seed) {
			t.Errorf("party %d does not share the group seed", p.ID)
		}
		AddVecRaw(sum, p.PublicKey.T)
	}
	for i := range sum {
		if !polyEqual(sum[i], group.T[i]) {
			t.Fatal("group key is not the unreduced sum of party keys")
		}
	}

	subset, err := SubsetKey(r, PublicKeys(parties), []int{1, 3})
	if err != nil {
		t.Fatalf("SubsetKey failed: %v", err)
	}
	if subset[0][0] != parties[0].PublicKey.T[0][0]+parties[2].PublicKey.T[0][0] {
		t.Error("SubsetKey did not sum the selected parties")
	}
	if _, err := SubsetKey(r, PublicKeys(parties), []int{4}); err == nil {
		t.Error("expected error for unknown party")
	}
}

func TestSetupSystem_InvalidCount(t *testing.T) {
	r := newTestRing(t)
	for _, n := range []int{0, -1, MaxParties + 1} {
		if _, _, err := SetupSystem(r, n); err == nil {
			t.Errorf("expected error for %d parties", n)
		}
	}
}
