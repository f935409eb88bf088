package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
)

// GroupKeyFile is the file name SaveSystem gives the group public key.
const GroupKeyFile = "group_public_key.json"

type groupFile struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  int64     `json:"timestamp"`
	Parties    int       `json:"parties"`
	PublicSeed string    `json:"public_seed"`
	T          [][]int64 `json:"T"`
}

// PartyAlias is the alias under which party id's key pair is stored.
func PartyAlias(id int) string {
	return fmt.Sprintf("party_%d", id)
}

// SaveSystem writes the output of mlwe.SetupSystem to dir: the group key and
// a party_<id>.sk / .pk pair per party. It returns the group key path.
func SaveSystem(dir string, group *qsp.GroupKey, parties []qsp.PartyKey) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	now := time.Now().Unix()
	gf := &groupFile{
		Version:    KeyVersion,
		Type:       TypeGroupKey,
		Timestamp:  now,
		Parties:    len(parties),
		PublicSeed: hex.EncodeToString(group.Seed),
		T:          toRows(group.T),
	}
	groupPath := filepath.Join(dir, GroupKeyFile)
	if err := writeJSON(groupPath, gf, 0o644); err != nil {
		return "", err
	}
	for _, p := range parties {
		sk := p.SecretKey
		id := &Identity{
			Alias:     PartyAlias(p.ID),
			Timestamp: now,
			PartyID:   p.ID,
			PublicKey: p.PublicKey,
			SecretKey: &sk,
		}
		if _, _, err := Save(dir, id); err != nil {
			return "", fmt.Errorf("party %d: %w", p.ID, err)
		}
	}
	return groupPath, nil
}

// LoadGroupKey reads a group key file.
func LoadGroupKey(r *mlwe.Ring, path string) (*qsp.GroupKey, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	if info.Size() > MaxKeyFileSize {
		return nil, 0, fmt.Errorf("%w: %s: key file too large", qsp.ErrIO, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	var gf groupFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, 0, fmt.Errorf("%s: %w: %v", path, ErrKeyFormat, err)
	}
	if gf.Version != KeyVersion || gf.Type != TypeGroupKey {
		return nil, 0, fmt.Errorf("%s: %w: not a %s %s file", path, ErrKeyFormat, KeyVersion, TypeGroupKey)
	}
	seed, err := hex.DecodeString(gf.PublicSeed)
	if err != nil || len(seed) == 0 {
		return nil, 0, fmt.Errorf("%s: %w: bad public seed", path, ErrKeyFormat)
	}
	t := fromRows(gf.T)
	if err := r.CheckVec(t, r.Params().K); err != nil {
		return nil, 0, fmt.Errorf("%s: %w: %v", path, ErrKeyFormat, err)
	}
	return &qsp.GroupKey{Seed: seed, T: t}, gf.Parties, nil
}

// LoadParty loads party id's secret key from dir as a qsp.PartyKey.
func LoadParty(r *mlwe.Ring, dir string, id int) (qsp.PartyKey, error) {
	ident, err := FindSecretKey(r, dir, PartyAlias(id))
	if err != nil {
		return qsp.PartyKey{}, err
	}
	if ident.PartyID != id {
		return qsp.PartyKey{}, fmt.Errorf("%w: %s holds party %d", ErrKeyFormat, PartyAlias(id), ident.PartyID)
	}
	return qsp.PartyKey{
		ID: id,
		KeyPair: qsp.KeyPair{
			PublicKey: ident.PublicKey,
			SecretKey: *ident.SecretKey,
		},
	}, nil
}
