package dealer

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/imageio"
	"github.com/BackendStack21/qsp-go/internal/logging"
	"github.com/BackendStack21/qsp-go/internal/metrics"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/sharing"
	"github.com/BackendStack21/qsp-go/sign"
	"github.com/BackendStack21/qsp-go/stego"
)

// LockRequest describes one lock run.
type LockRequest struct {
	SecretPath string
	CoversDir  string
	KeysDir    string // owner .pk files, the first Shares by name are used
	OutputDir  string
	Shares     int // n
	Threshold  int // t

	// Dealer, when set, signs the secret digest and the signature travels
	// in every share.
	Dealer *identity.Identity
}

// Locker runs the lock flow.
type Locker struct {
	params  qsp.Params
	ring    *mlwe.Ring
	codec   *stego.Codec
	log     *logging.Logger
	workers int
}

// NewLocker validates params and builds the engines.
func NewLocker(params qsp.Params, log *logging.Logger) (*Locker, error) {
	if err := core.ValidateParams(params); err != nil {
		return nil, err
	}
	r, err := mlwe.NewRing(params.Lattice)
	if err != nil {
		return nil, err
	}
	codec, err := stego.NewCodec(params.Stego)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Locker{params: params, ring: r, codec: codec, log: log, workers: runtime.NumCPU()}, nil
}

// SetWorkers bounds the number of shares embedded concurrently.
func (l *Locker) SetWorkers(n int) {
	if n > 0 {
		l.workers = n
	}
}

// Lock splits the secret into req.Shares shares, hides share i in the i-th
// cover and writes the carriers and the manifest to req.OutputDir.
func (l *Locker) Lock(ctx context.Context, req LockRequest) (m *qsp.Manifest, err error) {
	defer metrics.Track(metrics.OpLock, time.Now(), &err)

	n, t := req.Shares, req.Threshold
	if t < 1 || t >= n {
		return nil, fmt.Errorf("%w: need 1 <= t < n, got t=%d n=%d", qsp.ErrValidation, t, n)
	}

	owners, err := identity.DiscoverPublicKeys(l.ring, req.KeysDir)
	if err != nil {
		return nil, err
	}
	if len(owners) < n {
		return nil, fmt.Errorf("%w: %d public keys in %s, need %d", qsp.ErrValidation, len(owners), req.KeysDir, n)
	}
	owners = owners[:n]

	covers, err := imageio.ListImages(req.CoversDir)
	if err != nil {
		return nil, err
	}
	if len(covers) < n {
		return nil, fmt.Errorf("%w: %d cover images in %s, need %d", qsp.ErrValidation, len(covers), req.CoversDir, n)
	}
	covers = covers[:n]
	l.log.Infof("loaded %d identities and %d covers", n, n)

	secret, err := imageio.Load(req.SecretPath)
	if err != nil {
		return nil, err
	}

	sp := l.params.Sharing
	moduli, err := sharing.GenerateModuli(n, t, sp.PixelMax, sp.SecretModulus)
	if err != nil {
		return nil, err
	}
	l.log.Debugf("moduli %v", moduli)

	scrambled, original, err := sharing.NewScrambler(sp).Scramble(secret)
	if err != nil {
		return nil, err
	}
	shares, err := sharing.NewSplitter(sp, t).Split(scrambled, original, moduli)
	if err != nil {
		return nil, err
	}
	l.log.Infof("split %s secret into %d shares (threshold %d)", original, n, t)

	manifest := &qsp.Manifest{
		Version:     qsp.ManifestVersion,
		Threshold:   t,
		TotalShares: n,
		PublicSeed:  hex.EncodeToString(owners[0].PublicKey.Seed),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Registry:    make([]qsp.RegistryEntry, n),
	}

	if req.Dealer != nil {
		if !req.Dealer.HasSecret() {
			return nil, fmt.Errorf("%w: dealer identity %s has no secret key", qsp.ErrValidation, req.Dealer.Alias)
		}
		sig, err := sign.Sign(l.ring, req.Dealer.SecretKey, SecretDigest(secret))
		if err != nil {
			return nil, fmt.Errorf("failed to sign secret: %w", err)
		}
		encoded := sign.SerializeSignature(sig)
		for i := range shares {
			shares[i].Signature = encoded
		}
		manifest.DealerFingerprint = req.Dealer.Fingerprint()
		l.log.Infof("secret signed by dealer %s", req.Dealer.Alias)
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i := range shares {
		i := i
		g.Go(func() error {
			entry, err := l.distribute(gctx, &shares[i], owners[i], covers[i], req.OutputDir)
			if err != nil {
				return fmt.Errorf("share %d: %w", shares[i].Index, err)
			}
			manifest.Registry[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := WriteManifest(filepath.Join(req.OutputDir, ManifestFile), manifest); err != nil {
		return nil, err
	}
	l.log.Infof("asset locked: %d carriers and %s written to %s", n, ManifestFile, req.OutputDir)
	return manifest, nil
}

// distribute encodes one share, embeds it in its cover and writes the carrier.
func (l *Locker) distribute(ctx context.Context, share *qsp.SharePayload, owner *identity.Identity, coverPath, outDir string) (entry qsp.RegistryEntry, err error) {
	defer metrics.Track(metrics.OpEmbed, time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return entry, err
	}
	payload, err := sharing.EncodePayload(share)
	if err != nil {
		return entry, err
	}
	cover, err := imageio.Load(coverPath)
	if err != nil {
		return entry, err
	}
	if err := ctx.Err(); err != nil {
		return entry, err
	}
	carrier, err := l.codec.Embed(cover, payload)
	if err != nil {
		return entry, fmt.Errorf("%s: %w", filepath.Base(coverPath), err)
	}
	name := CarrierName(share.Index)
	if err := imageio.SavePNG(filepath.Join(outDir, name), carrier); err != nil {
		return entry, err
	}
	l.log.Debugf("share %d (%d bytes) hidden in %s for %s", share.Index, len(payload), name, owner.Alias)

	return qsp.RegistryEntry{
		ShareIndex:       share.Index,
		Modulus:          share.Modulus,
		CarrierFile:      name,
		ShareFingerprint: sharing.Fingerprint(payload),
		OwnerFingerprint: owner.Fingerprint(),
		OwnerAlias:       owner.Alias,
	}, nil
}
