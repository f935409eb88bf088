package dealer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/imageio"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/sharing"
	"github.com/BackendStack21/qsp-go/stego"
	"github.com/BackendStack21/qsp-go/utils"
)

type fixture struct {
	keys, covers, assets, restored string
	secretPath                     string
	secret                         *qsp.Raster
	owners                         []*identity.Identity
	ring                           *mlwe.Ring
}

// newFixture writes n owner identities, n covers of size x size and a small
// secret into a temp directory.
func newFixture(t *testing.T, n, size int) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		keys:     filepath.Join(dir, "keys"),
		covers:   filepath.Join(dir, "covers"),
		assets:   filepath.Join(dir, "assets"),
		restored: filepath.Join(dir, "restored"),
	}
	require.NoError(t, os.MkdirAll(f.covers, 0o755))

	r, err := mlwe.NewRing(core.DefaultParams.Lattice)
	require.NoError(t, err)
	f.ring = r
	for i := 0; i < n; i++ {
		id, err := identity.Generate(r, fmt.Sprintf("owner_%d", i+1))
		require.NoError(t, err)
		_, _, err = identity.Save(f.keys, id)
		require.NoError(t, err)
		f.owners = append(f.owners, id)
	}

	for i := 0; i < n; i++ {
		cover := qsp.NewRaster(qsp.Shape{H: size, W: size, C: 3})
		noise, err := utils.SecureRandomBytes(len(cover.Pix))
		require.NoError(t, err)
		for j := range cover.Pix {
			cover.Pix[j] = uint8(40 + (j/3)%size/4 + int(noise[j]%16))
		}
		require.NoError(t, imageio.SavePNG(filepath.Join(f.covers, fmt.Sprintf("cover_%02d.png", i)), cover))
	}

	f.secret = qsp.NewRaster(qsp.Shape{H: 6, W: 8, C: 3})
	pix, err := utils.SecureRandomBytes(len(f.secret.Pix))
	require.NoError(t, err)
	copy(f.secret.Pix, pix)
	f.secretPath = filepath.Join(dir, "secret.png")
	require.NoError(t, imageio.SavePNG(f.secretPath, f.secret))
	return f
}

func (f *fixture) lockRequest(n, t int) LockRequest {
	return LockRequest{
		SecretPath: f.secretPath,
		CoversDir:  f.covers,
		KeysDir:    f.keys,
		OutputDir:  f.assets,
		Shares:     n,
		Threshold:  t,
	}
}

func (f *fixture) unlockRequest() UnlockRequest {
	return UnlockRequest{AssetsDir: f.assets, KeysDir: f.keys, OutputDir: f.restored}
}

func newLocker(t *testing.T) *Locker {
	t.Helper()
	l, err := NewLocker(core.GetParams(), nil)
	require.NoError(t, err)
	return l
}

func newUnlocker(t *testing.T) *Unlocker {
	t.Helper()
	u, err := NewUnlocker(core.GetParams(), nil)
	require.NoError(t, err)
	return u
}

func outcome(t *testing.T, res *UnlockResult, file string) CarrierOutcome {
	t.Helper()
	for _, o := range res.Carriers {
		if o.File == file {
			return o
		}
	}
	t.Fatalf("no outcome for %s", file)
	return CarrierOutcome{}
}

func TestLockUnlockRoundTrip(t *testing.T) {
	f := newFixture(t, 5, 384)
	ctx := context.Background()

	m, err := newLocker(t).Lock(ctx, f.lockRequest(5, 3))
	require.NoError(t, err)
	assert.Equal(t, qsp.ManifestVersion, m.Version)
	assert.Equal(t, 3, m.Threshold)
	assert.Equal(t, 5, m.TotalShares)
	require.Len(t, m.Registry, 5)
	for i, e := range m.Registry {
		assert.Equal(t, i+1, e.ShareIndex)
		assert.Equal(t, CarrierName(i+1), e.CarrierFile)
		assert.Equal(t, f.owners[i].Alias, e.OwnerAlias)
		assert.Equal(t, f.owners[i].Fingerprint(), e.OwnerFingerprint)
		assert.FileExists(t, filepath.Join(f.assets, e.CarrierFile))
	}

	loaded, err := LoadManifest(filepath.Join(f.assets, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, m.Registry, loaded.Registry)

	res, err := newUnlocker(t).Unlock(ctx, f.unlockRequest())
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, []int{1, 2, 3}, res.Accepted)
	_, err = uuid.Parse(res.SessionID)
	assert.NoError(t, err)

	recovered, err := imageio.Load(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, f.secret.Shape, recovered.Shape)
	assert.Equal(t, f.secret.Pix, recovered.Pix)
}

// A tampered payload byte fails the fingerprint check for that
// share only.
func TestUnlockTamperedCarrier(t *testing.T) {
	f := newFixture(t, 5, 384)
	ctx := context.Background()
	_, err := newLocker(t).Lock(ctx, f.lockRequest(5, 3))
	require.NoError(t, err)

	codec, err := stego.NewCodec(core.DefaultParams.Stego)
	require.NoError(t, err)
	path := filepath.Join(f.assets, CarrierName(1))
	img, err := imageio.Load(path)
	require.NoError(t, err)
	data, err := codec.Extract(img)
	require.NoError(t, err)
	data[len(data)/2] ^= 0x01
	tampered, err := codec.Embed(img, data)
	require.NoError(t, err)
	require.NoError(t, imageio.SavePNG(path, tampered))

	u := newUnlocker(t)
	u.NewSessionID = func() string { return "session-d" }
	res, err := u.Unlock(ctx, f.unlockRequest())
	require.NoError(t, err)
	assert.Equal(t, "session-d", res.SessionID)
	assert.Equal(t, []int{2, 3, 4}, res.Accepted)

	o := outcome(t, res, CarrierName(1))
	assert.Equal(t, ResultFingerprintMismatch, o.Code)
	assert.ErrorIs(t, o.Err, qsp.ErrIntegrity)
	assert.Equal(t, f.secret.Pix, res.Secret.Pix)
}

func TestUnlockMissingIdentity(t *testing.T) {
	f := newFixture(t, 5, 384)
	ctx := context.Background()
	_, err := newLocker(t).Lock(ctx, f.lockRequest(5, 3))
	require.NoError(t, err)

	for _, id := range f.owners[:3] {
		require.NoError(t, os.Remove(filepath.Join(f.keys, id.Alias+identity.SecretKeyExt)))
	}

	res, err := newUnlocker(t).Unlock(ctx, f.unlockRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sharing.ErrInsufficientShares))
	require.NotNil(t, res)
	assert.Equal(t, ResultInsufficientShares, res.Code)
	assert.Equal(t, []int{4, 5}, res.Accepted)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, ResultMissingIdentity, outcome(t, res, CarrierName(i)).Code)
	}
	assert.NoFileExists(t, filepath.Join(f.restored, RecoveredFile))
}

func TestUnlockWrongOwnerKey(t *testing.T) {
	f := newFixture(t, 4, 384)
	ctx := context.Background()
	_, err := newLocker(t).Lock(ctx, f.lockRequest(4, 2))
	require.NoError(t, err)

	// Replace owner_1's secret key with an unrelated identity under the same alias.
	impostor, err := identity.Generate(f.ring, f.owners[0].Alias)
	require.NoError(t, err)
	_, _, err = identity.Save(f.keys, impostor)
	require.NoError(t, err)

	res, err := newUnlocker(t).Unlock(ctx, f.unlockRequest())
	require.NoError(t, err)
	assert.Equal(t, ResultMissingIdentity, outcome(t, res, CarrierName(1)).Code)
	assert.Equal(t, []int{2, 3}, res.Accepted)
}

func TestUnlockIgnoresUnregisteredImages(t *testing.T) {
	f := newFixture(t, 4, 384)
	ctx := context.Background()
	_, err := newLocker(t).Lock(ctx, f.lockRequest(4, 2))
	require.NoError(t, err)

	stray := qsp.NewRaster(qsp.Shape{H: 16, W: 16, C: 3})
	require.NoError(t, imageio.SavePNG(filepath.Join(f.assets, "a_stray.png"), stray))

	res, err := newUnlocker(t).Unlock(ctx, f.unlockRequest())
	require.NoError(t, err)
	assert.Equal(t, ResultUnregistered, outcome(t, res, "a_stray.png").Code)
	assert.Equal(t, []int{1, 2}, res.Accepted)
}

func TestDealerSignature(t *testing.T) {
	f := newFixture(t, 3, 1024)
	ctx := context.Background()

	dealer, err := identity.Generate(f.ring, "dealer")
	require.NoError(t, err)
	req := f.lockRequest(3, 2)
	req.Dealer = dealer
	m, err := newLocker(t).Lock(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, dealer.Fingerprint(), m.DealerFingerprint)

	ureq := f.unlockRequest()
	ureq.Dealer = &dealer.PublicKey
	res, err := newUnlocker(t).Unlock(ctx, ureq)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, f.secret.Pix, res.Secret.Pix)

	other, err := identity.Generate(f.ring, "other")
	require.NoError(t, err)
	ureq.Dealer = &other.PublicKey
	res, err = newUnlocker(t).Unlock(ctx, ureq)
	assert.ErrorIs(t, err, ErrDealerSignature)
	assert.ErrorIs(t, err, qsp.ErrIntegrity)
	assert.Equal(t, ResultDealerMismatch, res.Code)
}

func TestLockValidation(t *testing.T) {
	f := newFixture(t, 3, 64)
	l := newLocker(t)
	ctx := context.Background()

	_, err := l.Lock(ctx, f.lockRequest(3, 3))
	assert.ErrorIs(t, err, qsp.ErrValidation)

	_, err = l.Lock(ctx, f.lockRequest(3, 0))
	assert.ErrorIs(t, err, qsp.ErrValidation)

	_, err = l.Lock(ctx, f.lockRequest(4, 2))
	assert.ErrorIs(t, err, qsp.ErrValidation, "too few public keys")

	req := f.lockRequest(3, 2)
	req.CoversDir = t.TempDir()
	_, err = l.Lock(ctx, req)
	assert.ErrorIs(t, err, qsp.ErrValidation, "too few covers")

	// 64x64 covers hold far less than a share.
	_, err = l.Lock(ctx, f.lockRequest(3, 2))
	assert.ErrorIs(t, err, stego.ErrCapacity)

	req = f.lockRequest(3, 2)
	req.SecretPath = filepath.Join(t.TempDir(), "missing.png")
	_, err = l.Lock(ctx, req)
	assert.ErrorIs(t, err, qsp.ErrIO)
}

// Any single share restores the secret when t is 1.
func TestLockUnlockThresholdOne(t *testing.T) {
	f := newFixture(t, 2, 384)
	ctx := context.Background()

	m, err := newLocker(t).Lock(ctx, f.lockRequest(2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Threshold)

	require.NoError(t, os.Remove(filepath.Join(f.assets, CarrierName(1))))
	res, err := newUnlocker(t).Unlock(ctx, f.unlockRequest())
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, []int{2}, res.Accepted)
	assert.Equal(t, f.secret.Pix, res.Secret.Pix)
}

func TestLockCancelled(t *testing.T) {
	f := newFixture(t, 3, 384)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newLocker(t).Lock(ctx, f.lockRequest(3, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(f.assets, ManifestFile))
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadManifest(filepath.Join(dir, ManifestFile))
	assert.ErrorIs(t, err, qsp.ErrIO)

	write := func(m *qsp.Manifest) string {
		path := filepath.Join(dir, ManifestFile)
		require.NoError(t, WriteManifest(path, m))
		return path
	}
	good := func() *qsp.Manifest {
		return &qsp.Manifest{
			Version:     qsp.ManifestVersion,
			Threshold:   2,
			TotalShares: 2,
			Registry: []qsp.RegistryEntry{
				{ShareIndex: 1, CarrierFile: CarrierName(1)},
				{ShareIndex: 2, CarrierFile: CarrierName(2)},
			},
		}
	}
	_, err = LoadManifest(write(good()))
	require.NoError(t, err)

	for name, mutate := range map[string]func(*qsp.Manifest){
		"version":   func(m *qsp.Manifest) { m.Version = "QSP-1.0" },
		"threshold": func(m *qsp.Manifest) { m.Threshold = 3 },
		"registry":  func(m *qsp.Manifest) { m.Registry = m.Registry[:1] },
		"duplicate": func(m *qsp.Manifest) { m.Registry[1].CarrierFile = CarrierName(1) },
		"path":      func(m *qsp.Manifest) { m.Registry[0].CarrierFile = "../x.png" },
	} {
		m := good()
		mutate(m)
		_, err := LoadManifest(write(m))
		assert.ErrorIs(t, err, qsp.ErrValidation, name)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("{"), 0o644))
	_, err = LoadManifest(filepath.Join(dir, ManifestFile))
	assert.ErrorIs(t, err, qsp.ErrValidation)
}

func TestResultCodeString(t *testing.T) {
	assert.Equal(t, "fingerprint-mismatch", ResultFingerprintMismatch.String())
	assert.Equal(t, "ResultCode(42)", ResultCode(42).String())
}
