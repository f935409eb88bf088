// Package identity stores lattice key pairs as JSON files.
//
// A user identity is a pair of files sharing one alias: <alias>.sk holds the
// secret vectors and <alias>.pk the public vector. Both carry the public seed
// that expands to the matrix A. Threshold setups additionally write a group
// key file and one key pair per party.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/utils"
)

const (
	// KeyVersion is written into every key file.
	KeyVersion = "LWE-1.0"

	TypeSecretKey = "SECRET_KEY"
	TypePublicKey = "PUBLIC_KEY"
	TypeGroupKey  = "GROUP_PUBLIC_KEY"

	PublicKeyExt = ".pk"
	SecretKeyExt = ".sk"

	// MaxKeyFileSize bounds key files read from disk.
	MaxKeyFileSize = 16 << 20
)

var (
	// ErrNotFound is returned when no key file exists for an alias.
	ErrNotFound = fmt.Errorf("%w: identity not found", qsp.ErrIO)

	// ErrKeyFormat is returned for key files that do not parse or do not
	// match the ring.
	ErrKeyFormat = fmt.Errorf("%w: malformed key file", qsp.ErrValidation)

	// ErrKeyHMAC is returned when a secret key file fails its integrity check.
	ErrKeyHMAC = fmt.Errorf("%w: key file checksum mismatch", qsp.ErrIntegrity)
)

// Identity is a named key pair. SecretKey is nil for identities loaded from a
// public key file.
type Identity struct {
	Alias     string
	Timestamp int64
	PartyID   int
	PublicKey qsp.PublicKey
	SecretKey *qsp.SecretKey
}

// HasSecret reports whether the identity can sign.
func (id *Identity) HasSecret() bool {
	return id.SecretKey != nil
}

// Fingerprint returns the hex SHA-256 of the identity's public key.
func (id *Identity) Fingerprint() string {
	return Fingerprint(&id.PublicKey)
}

// Fingerprint returns the hex SHA-256 of a public key.
func Fingerprint(pk *qsp.PublicKey) string {
	return mlwe.Fingerprint(pk)
}

type keyFile struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  int64     `json:"timestamp"`
	PartyID    int       `json:"party_id,omitempty"`
	PublicSeed string    `json:"public_seed"`
	S          [][]int64 `json:"s,omitempty"`
	E          [][]int64 `json:"e,omitempty"`
	T          [][]int64 `json:"t"`
	KeyHMAC    string    `json:"key_hmac,omitempty"`
}

// Generate creates a fresh identity under its own public seed. The alias
// defaults to user_<unix time>.
func Generate(r *mlwe.Ring, alias string) (*Identity, error) {
	kp, err := mlwe.GenerateKeyPair(r)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	if alias == "" {
		alias = fmt.Sprintf("user_%d", now)
	}
	sk := kp.SecretKey
	return &Identity{
		Alias:     alias,
		Timestamp: now,
		PublicKey: kp.PublicKey,
		SecretKey: &sk,
	}, nil
}

// Save writes <dir>/<alias>.pk and, when present, <dir>/<alias>.sk. Secret
// key files are created with mode 0600.
func Save(dir string, id *Identity) (pkPath, skPath string, err error) {
	if id.Alias == "" || strings.ContainsAny(id.Alias, `/\`) {
		return "", "", fmt.Errorf("%w: invalid alias %q", qsp.ErrValidation, id.Alias)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	pkPath = filepath.Join(dir, id.Alias+PublicKeyExt)
	if err := writeJSON(pkPath, publicFile(id), 0o644); err != nil {
		return "", "", err
	}
	if id.SecretKey == nil {
		return pkPath, "", nil
	}
	sf, err := secretFile(id)
	if err != nil {
		return "", "", err
	}
	skPath = filepath.Join(dir, id.Alias+SecretKeyExt)
	if err := writeJSON(skPath, sf, 0o600); err != nil {
		return "", "", err
	}
	return pkPath, skPath, nil
}

func publicFile(id *Identity) *keyFile {
	return &keyFile{
		Version:    KeyVersion,
		Type:       TypePublicKey,
		Timestamp:  id.Timestamp,
		PartyID:    id.PartyID,
		PublicSeed: hex.EncodeToString(id.PublicKey.Seed),
		T:          toRows(id.PublicKey.T),
	}
}

func secretFile(id *Identity) (*keyFile, error) {
	if !hmac.Equal(id.SecretKey.Seed, id.PublicKey.Seed) {
		return nil, fmt.Errorf("%w: secret and public key seeds differ", qsp.ErrValidation)
	}
	f := &keyFile{
		Version:    KeyVersion,
		Type:       TypeSecretKey,
		Timestamp:  id.Timestamp,
		PartyID:    id.PartyID,
		PublicSeed: hex.EncodeToString(id.PublicKey.Seed),
		S:          toRows(id.SecretKey.S1),
		E:          toRows(id.SecretKey.S2),
		T:          toRows(id.PublicKey.T),
	}
	f.KeyHMAC = keyHMAC(&id.PublicKey, id.SecretKey)
	return f, nil
}

// keyHMAC detects accidental corruption of a secret key file. It is keyed
// with public material and is not a defence against deliberate edits.
func keyHMAC(pk *qsp.PublicKey, sk *qsp.SecretKey) string {
	h := hmac.New(sha256.New, mlwe.SerializePublicKey(pk))
	raw := mlwe.SerializeSecretKey(sk)
	defer utils.Zeroize(raw)
	h.Write(raw)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// LoadPublicKey reads a .pk file and checks it against the ring.
func LoadPublicKey(r *mlwe.Ring, path string) (*Identity, error) {
	f, err := readKeyFile(path, TypePublicKey)
	if err != nil {
		return nil, err
	}
	return f.identity(r, path, false)
}

// LoadSecretKey reads a .sk file, checks it against the ring and verifies its
// checksum when one is present.
func LoadSecretKey(r *mlwe.Ring, path string) (*Identity, error) {
	f, err := readKeyFile(path, TypeSecretKey)
	if err != nil {
		return nil, err
	}
	id, err := f.identity(r, path, true)
	if err != nil {
		return nil, err
	}
	if f.KeyHMAC != "" && !hmac.Equal([]byte(f.KeyHMAC), []byte(keyHMAC(&id.PublicKey, id.SecretKey))) {
		return nil, fmt.Errorf("%s: %w", path, ErrKeyHMAC)
	}
	return id, nil
}

func (f *keyFile) identity(r *mlwe.Ring, path string, secret bool) (*Identity, error) {
	p := r.Params()
	seed, err := hex.DecodeString(f.PublicSeed)
	if err != nil || len(seed) == 0 {
		return nil, fmt.Errorf("%s: %w: bad public seed", path, ErrKeyFormat)
	}
	t := fromRows(f.T)
	if err := r.CheckVec(t, p.K); err != nil {
		return nil, fmt.Errorf("%s: %w: t: %v", path, ErrKeyFormat, err)
	}
	id := &Identity{
		Alias:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Timestamp: f.Timestamp,
		PartyID:   f.PartyID,
		PublicKey: qsp.PublicKey{Seed: seed, T: t},
	}
	if !secret {
		return id, nil
	}

	s1, s2 := fromRows(f.S), fromRows(f.E)
	if err := r.CheckVec(s1, p.L); err != nil {
		return nil, fmt.Errorf("%s: %w: s: %v", path, ErrKeyFormat, err)
	}
	if err := r.CheckVec(s2, p.K); err != nil {
		return nil, fmt.Errorf("%s: %w: e: %v", path, ErrKeyFormat, err)
	}
	if mlwe.VecInfNorm(s1) > int64(p.Eta) || mlwe.VecInfNorm(s2) > int64(p.Eta) {
		return nil, fmt.Errorf("%s: %w: secret coefficients exceed eta", path, ErrKeyFormat)
	}
	id.SecretKey = &qsp.SecretKey{Seed: seed, S1: s1, S2: s2}
	return id, nil
}

// DiscoverPublicKeys loads every .pk file in dir, sorted by file name.
func DiscoverPublicKeys(r *mlwe.Ring, dir string) ([]*Identity, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == PublicKeyExt {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*Identity, 0, len(names))
	for _, name := range names {
		id, err := LoadPublicKey(r, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// FindSecretKey loads <dir>/<alias>.sk. It returns ErrNotFound when the file
// does not exist.
func FindSecretKey(r *mlwe.Ring, dir, alias string) (*Identity, error) {
	path := filepath.Join(dir, alias+SecretKeyExt)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, alias)
	}
	return LoadSecretKey(r, path)
}

func readKeyFile(path, wantType string) (*keyFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	if info.Size() > MaxKeyFileSize {
		return nil, fmt.Errorf("%w: %s: key file too large: %d > %d bytes", qsp.ErrIO, path, info.Size(), MaxKeyFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrKeyFormat, err)
	}
	if f.Version != KeyVersion {
		return nil, fmt.Errorf("%s: %w: unsupported version %q", path, ErrKeyFormat, f.Version)
	}
	if f.Type != wantType {
		return nil, fmt.Errorf("%s: %w: expected %s, found %s", path, ErrKeyFormat, wantType, f.Type)
	}
	return &f, nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	return nil
}

func toRows(v qsp.PolyVec) [][]int64 {
	rows := make([][]int64, len(v))
	for i, p := range v {
		rows[i] = []int64(p)
	}
	return rows
}

func fromRows(rows [][]int64) qsp.PolyVec {
	v := make(qsp.PolyVec, len(rows))
	for i, row := range rows {
		v[i] = qsp.Poly(row)
	}
	return v
}
