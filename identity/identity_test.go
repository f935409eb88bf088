package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/sign"
)

func testRing(t *testing.T) *mlwe.Ring {
	t.Helper()
	r, err := mlwe.NewRing(core.DefaultParams.Lattice)
	require.NoError(t, err)
	return r
}

func TestSaveLoadIdentity(t *testing.T) {
	r := testRing(t)
	dir := t.TempDir()

	id, err := Generate(r, "alice")
	require.NoError(t, err)
	pkPath, skPath, err := Save(dir, id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.pk"), pkPath)
	assert.Equal(t, filepath.Join(dir, "alice.sk"), skPath)

	info, err := os.Stat(skPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pub, err := LoadPublicKey(r, pkPath)
	require.NoError(t, err)
	assert.False(t, pub.HasSecret())
	assert.Equal(t, "alice", pub.Alias)
	assert.Equal(t, id.Fingerprint(), pub.Fingerprint())

	sec, err := FindSecretKey(r, dir, "alice")
	require.NoError(t, err)
	require.True(t, sec.HasSecret())
	assert.Equal(t, id.SecretKey.S1, sec.SecretKey.S1)
	assert.Equal(t, id.SecretKey.S2, sec.SecretKey.S2)

	// The loaded pair still signs and verifies.
	sig, err := sign.Sign(r, sec.SecretKey, []byte("msg"))
	require.NoError(t, err)
	assert.True(t, sign.Verify(r, &pub.PublicKey, []byte("msg"), sig))
}

func TestDefaultAlias(t *testing.T) {
	id, err := Generate(testRing(t), "")
	require.NoError(t, err)
	assert.Regexp(t, `^user_\d+$`, id.Alias)
}

func TestKeyFileLayout(t *testing.T) {
	r := testRing(t)
	dir := t.TempDir()
	id, err := Generate(r, "bob")
	require.NoError(t, err)
	_, skPath, err := Save(dir, id)
	require.NoError(t, err)

	data, err := os.ReadFile(skPath)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, k := range []string{"version", "type", "timestamp", "public_seed", "s", "e", "t", "key_hmac"} {
		assert.Contains(t, raw, k)
	}
	assert.Equal(t, KeyVersion, raw["version"])
	assert.Equal(t, TypeSecretKey, raw["type"])
}

func TestDiscoverPublicKeys(t *testing.T) {
	r := testRing(t)
	dir := t.TempDir()
	for _, alias := range []string{"carol", "alice", "bob"} {
		id, err := Generate(r, alias)
		require.NoError(t, err)
		_, _, err = Save(dir, id)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	ids, err := DiscoverPublicKeys(r, dir)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, "alice", ids[0].Alias)
	assert.Equal(t, "bob", ids[1].Alias)
	assert.Equal(t, "carol", ids[2].Alias)

	_, err = DiscoverPublicKeys(r, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, qsp.ErrIO)
}

func TestFindSecretKeyMissing(t *testing.T) {
	_, err := FindSecretKey(testRing(t), t.TempDir(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, qsp.ErrIO)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	r := testRing(t)
	dir := t.TempDir()
	id, err := Generate(r, "dave")
	require.NoError(t, err)
	pkPath, skPath, err := Save(dir, id)
	require.NoError(t, err)

	t.Run("wrong type", func(t *testing.T) {
		_, err := LoadSecretKey(r, pkPath)
		assert.ErrorIs(t, err, ErrKeyFormat)
	})

	t.Run("corrupted secret", func(t *testing.T) {
		var f keyFile
		data, err := os.ReadFile(skPath)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &f))
		f.S[0][0] = (f.S[0][0]+3)%5 - 2 // stays within eta
		path := filepath.Join(dir, "corrupt.sk")
		require.NoError(t, writeJSON(path, &f, 0o600))
		_, err = LoadSecretKey(r, path)
		assert.ErrorIs(t, err, qsp.ErrIntegrity)
	})

	t.Run("wrong dimensions", func(t *testing.T) {
		var f keyFile
		data, err := os.ReadFile(pkPath)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &f))
		f.T = f.T[:1]
		path := filepath.Join(dir, "short.pk")
		require.NoError(t, writeJSON(path, &f, 0o600))
		_, err = LoadPublicKey(r, path)
		assert.ErrorIs(t, err, qsp.ErrValidation)
	})

	t.Run("bad version", func(t *testing.T) {
		path := filepath.Join(dir, "old.pk")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":"LWE-0.1","type":"PUBLIC_KEY"}`), 0o600))
		_, err := LoadPublicKey(r, path)
		assert.ErrorIs(t, err, ErrKeyFormat)
	})

	t.Run("not json", func(t *testing.T) {
		path := filepath.Join(dir, "junk.pk")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
		_, err := LoadPublicKey(r, path)
		assert.ErrorIs(t, err, ErrKeyFormat)
	})
}

func TestSaveRejectsBadAlias(t *testing.T) {
	id, err := Generate(testRing(t), "x")
	require.NoError(t, err)
	id.Alias = "../escape"
	_, _, err = Save(t.TempDir(), id)
	assert.ErrorIs(t, err, qsp.ErrValidation)
}

func TestSaveLoadSystem(t *testing.T) {
	r := testRing(t)
	dir := t.TempDir()
	group, parties, err := mlwe.SetupSystem(r, 3)
	require.NoError(t, err)

	groupPath, err := SaveSystem(dir, group, parties)
	require.NoError(t, err)

	loaded, n, err := LoadGroupKey(r, groupPath)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, group.Seed, loaded.Seed)
	assert.Equal(t, group.T, loaded.T)

	for _, p := range parties {
		got, err := LoadParty(r, dir, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, p.SecretKey.S1, got.SecretKey.S1)
		assert.Equal(t, p.PublicKey.T, got.PublicKey.T)
	}

	_, err = LoadParty(r, dir, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = LoadGroupKey(r, filepath.Join(dir, "party_1.pk"))
	assert.ErrorIs(t, err, ErrKeyFormat)
}
