package mlwe

import (
	"bytes"
	"testing"

	qsp "github.com/BackendStack21/qsp-go"
)

func TestSerialization(t *testing.T) {
	r := newTestRing(t)
	kp, err := GenerateKeyPair(r)
	if err != nil {
		t.Fatal(err)
	}

	pkBytes := SerializePublicKey(&kp.PublicKey)
	pk, err := DeserializePublicKey(pkBytes)
	if err != nil {
		t.Fatalf("DeserializePublicKey failed: %v", err)
	}
	if !bytes.Equal(SerializePublicKey(pk), pkBytes) {
		t.Error("public key did not survive serialization")
	}

	skBytes := SerializeSecretKey(&kp.SecretKey)
	sk, err := DeserializeSecretKey(skBytes)
	if err != nil {
		t.Fatalf("DeserializeSecretKey failed: %v", err)
	}
	if sk.S1[1][5] != kp.SecretKey.S1[1][5] || sk.S2[0][0] != kp.SecretKey.S2[0][0] {
		t.Error("secret key coefficients changed")
	}

	if _, err := DeserializePublicKey(append(pkBytes, 0)); err == nil {
		t.Error("expected error for trailing data")
	}
	if _, err := DeserializePublicKey(pkBytes[:len(pkBytes)-1]); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestFingerprint(t *testing.T) {
	r := newTestRing(t)
	kp1, _ := GenerateKeyPair(r)
	kp2, _ := GenerateKeyPair(r)

	fp := Fingerprint(&kp1.PublicKey)
	if len(fp) != 64 {
		t.Errorf("fingerprint should be 64 hex chars, got %d", len(fp))
	}
	if fp != Fingerprint(&kp1.PublicKey) {
		t.Error("fingerprint not stable")
	}
	if fp == Fingerprint(&kp2.PublicKey) {
		t.Error("different keys share a fingerprint")
	}
}

func TestEncodeInt32LE(t *testing.T) {
	got := EncodeInt32LE(qsp.PolyVec{{1, -1}})
	want := []byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeInt32LE = %x, want %x", got, want)
	}
}
