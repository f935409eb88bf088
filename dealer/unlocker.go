package dealer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
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

// ResultCode classifies the outcome of an unlock and of each carrier in it.
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	ResultInsufficientShares
	ResultFingerprintMismatch
	ResultMissingIdentity
	ResultUnregistered
	ResultSignatureRejected
	ResultDealerMismatch
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultInsufficientShares:
		return "insufficient-shares"
	case ResultFingerprintMismatch:
		return "fingerprint-mismatch"
	case ResultMissingIdentity:
		return "missing-identity"
	case ResultUnregistered:
		return "unregistered"
	case ResultSignatureRejected:
		return "signature-rejected"
	case ResultDealerMismatch:
		return "dealer-mismatch"
	}
	return fmt.Sprintf("ResultCode(%d)", int(c))
}

// ErrDealerSignature is returned when the recovered secret does not carry a
// valid signature of the expected dealer.
var ErrDealerSignature = fmt.Errorf("%w: dealer signature invalid", qsp.ErrIntegrity)

// UnlockRequest describes one unlock run.
type UnlockRequest struct {
	AssetsDir string // manifest and carriers
	KeysDir   string // owner .sk files
	OutputDir string

	// Dealer, when set, must have signed the recovered secret.
	Dealer *qsp.PublicKey
}

// CarrierOutcome reports what happened to one carrier. Code stays
// ResultSuccess for carriers that passed extraction but were not needed once
// the threshold was reached.
type CarrierOutcome struct {
	File  string
	Index int
	Owner string
	Code  ResultCode
	Err   error
}

// UnlockResult is the outcome of Unlock.
type UnlockResult struct {
	Code       ResultCode
	SessionID  string
	Threshold  int
	Accepted   []int // share indices used for reconstruction
	Carriers   []CarrierOutcome
	Secret     *qsp.Raster
	OutputPath string
}

// Unlocker runs the unlock flow.
type Unlocker struct {
	params  qsp.Params
	ring    *mlwe.Ring
	codec   *stego.Codec
	log     *logging.Logger
	workers int

	// NewSessionID returns the id bound into every authorization signature.
	NewSessionID func() string
}

// NewUnlocker validates params and builds the engines.
func NewUnlocker(params qsp.Params, log *logging.Logger) (*Unlocker, error) {
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
	return &Unlocker{
		params:       params,
		ring:         r,
		codec:        codec,
		log:          log,
		workers:      runtime.NumCPU(),
		NewSessionID: uuid.NewString,
	}, nil
}

// SetWorkers bounds the number of carriers extracted concurrently.
func (u *Unlocker) SetWorkers(n int) {
	if n > 0 {
		u.workers = n
	}
}

// candidate is a carrier whose payload passed the integrity checks.
type candidate struct {
	outcome *CarrierOutcome
	entry   qsp.RegistryEntry
	payload *qsp.SharePayload
}

// Unlock extracts every carrier in req.AssetsDir, authorizes the shares in
// file name order until the manifest threshold is reached, reconstructs the
// secret and writes it to req.OutputDir.
//
// Once the manifest is loaded the returned result is never nil. When fewer
// than threshold shares are authorized the result code is
// ResultInsufficientShares and the error wraps sharing.ErrInsufficientShares;
// the per-carrier outcomes say why each share was excluded.
func (u *Unlocker) Unlock(ctx context.Context, req UnlockRequest) (res *UnlockResult, err error) {
	defer metrics.Track(metrics.OpUnlock, time.Now(), &err)

	manifest, err := LoadManifest(filepath.Join(req.AssetsDir, ManifestFile))
	if err != nil {
		return nil, err
	}
	res = &UnlockResult{
		Code:      ResultInsufficientShares,
		SessionID: u.NewSessionID(),
		Threshold: manifest.Threshold,
	}
	log := u.log.With("session", res.SessionID)
	log.Infof("unlock started, threshold %d of %d", manifest.Threshold, manifest.TotalShares)

	files, err := carrierFiles(req.AssetsDir)
	if err != nil {
		return res, err
	}
	res.Carriers = make([]CarrierOutcome, len(files))
	candidates := make([]*candidate, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, file := range files {
		i := i
		res.Carriers[i] = CarrierOutcome{File: file}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = u.inspect(req.AssetsDir, manifest, &res.Carriers[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	var accepted []qsp.SharePayload
	for _, c := range candidates {
		if len(accepted) >= manifest.Threshold {
			break
		}
		if c == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if u.authorize(req.KeysDir, c, res.SessionID) {
			accepted = append(accepted, *c.payload)
			res.Accepted = append(res.Accepted, c.payload.Index)
			log.Infof("share %d authorized by %s", c.payload.Index, c.entry.OwnerAlias)
		} else {
			log.Warnf("share %d excluded (%s): %v", c.entry.ShareIndex, c.outcome.Code, c.outcome.Err)
		}
	}
	for _, o := range res.Carriers {
		if o.Code != ResultSuccess {
			metrics.RecordShareRejected(rejectReason(o))
		}
	}

	if len(accepted) < manifest.Threshold {
		return res, fmt.Errorf("%w: %d of %d shares authorized", sharing.ErrInsufficientShares, len(accepted), manifest.Threshold)
	}

	secret, err := sharing.NewReconstructor(u.params.Sharing, manifest.Threshold).Reconstruct(accepted)
	if err != nil {
		return res, err
	}
	if req.Dealer != nil {
		if err := u.checkDealer(manifest, req.Dealer, accepted, secret); err != nil {
			res.Code = ResultDealerMismatch
			return res, err
		}
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return res, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	res.OutputPath = filepath.Join(req.OutputDir, RecoveredFile)
	if err := imageio.SavePNG(res.OutputPath, secret); err != nil {
		return res, err
	}
	res.Secret = secret
	res.Code = ResultSuccess
	log.Infof("secret %s recovered to %s", secret.Shape, res.OutputPath)
	return res, nil
}

// inspect extracts one carrier and checks its payload against the manifest.
// It returns nil when the carrier cannot contribute a share.
func (u *Unlocker) inspect(dir string, m *qsp.Manifest, out *CarrierOutcome) (c *candidate) {
	var err error
	defer metrics.Track(metrics.OpExtract, time.Now(), &err)

	entry, ok := m.Entry(out.File)
	if !ok {
		err = fmt.Errorf("%w: %s not in manifest", qsp.ErrValidation, out.File)
		out.Code, out.Err = ResultUnregistered, err
		return nil
	}
	out.Index, out.Owner = entry.ShareIndex, entry.OwnerAlias

	fail := func(e error) *candidate {
		err = e
		out.Code, out.Err = ResultFingerprintMismatch, e
		return nil
	}

	img, err := imageio.Load(filepath.Join(dir, out.File))
	if err != nil {
		return fail(err)
	}
	data, err := u.codec.Extract(img)
	if err != nil {
		return fail(err)
	}
	if fp := sharing.Fingerprint(data); fp != entry.ShareFingerprint {
		return fail(fmt.Errorf("%w: share fingerprint %.12s does not match manifest %.12s", qsp.ErrIntegrity, fp, entry.ShareFingerprint))
	}
	payload, err := sharing.DecodePayload(data)
	if err != nil {
		return fail(err)
	}
	if payload.Index != entry.ShareIndex || payload.Modulus != entry.Modulus {
		return fail(fmt.Errorf("%w: payload is share %d mod %d, manifest says %d mod %d",
			qsp.ErrIntegrity, payload.Index, payload.Modulus, entry.ShareIndex, entry.Modulus))
	}
	return &candidate{outcome: out, entry: entry, payload: payload}
}

// authorize asks the registered owner to sign fingerprint||session and
// verifies the signature under the owner key the manifest names.
func (u *Unlocker) authorize(keysDir string, c *candidate, session string) bool {
	var err error
	defer metrics.Track(metrics.OpSign, time.Now(), &err)

	owner, err := identity.FindSecretKey(u.ring, keysDir, c.entry.OwnerAlias)
	if err != nil {
		c.outcome.Code, c.outcome.Err = ResultMissingIdentity, err
		return false
	}
	if owner.Fingerprint() != c.entry.OwnerFingerprint {
		err = fmt.Errorf("%w: key %s is not the registered owner", identity.ErrNotFound, owner.Alias)
		c.outcome.Code, c.outcome.Err = ResultMissingIdentity, err
		return false
	}

	msg := []byte(c.entry.ShareFingerprint + session)
	sig, err := sign.Sign(u.ring, owner.SecretKey, msg)
	if err != nil {
		c.outcome.Code, c.outcome.Err = ResultSignatureRejected, err
		return false
	}
	if !sign.Verify(u.ring, &owner.PublicKey, msg, sig) {
		err = fmt.Errorf("%w: authorization signature rejected", qsp.ErrIntegrity)
		c.outcome.Code, c.outcome.Err = ResultSignatureRejected, err
		return false
	}
	c.outcome.Code = ResultSuccess
	return true
}

func (u *Unlocker) checkDealer(m *qsp.Manifest, dealer *qsp.PublicKey, shares []qsp.SharePayload, secret *qsp.Raster) error {
	if m.DealerFingerprint != "" && m.DealerFingerprint != identity.Fingerprint(dealer) {
		return fmt.Errorf("%w: manifest names dealer %.12s", ErrDealerSignature, m.DealerFingerprint)
	}
	digest := SecretDigest(secret)
	for _, s := range shares {
		sig, err := sign.DeserializeSignature(s.Signature)
		if err != nil {
			return fmt.Errorf("%w: share %d: %v", ErrDealerSignature, s.Index, err)
		}
		if !sign.Verify(u.ring, dealer, digest, sig) {
			return fmt.Errorf("%w: share %d", ErrDealerSignature, s.Index)
		}
	}
	return nil
}

func rejectReason(o CarrierOutcome) string {
	switch o.Code {
	case ResultUnregistered:
		return metrics.ReasonUnregistered
	case ResultMissingIdentity:
		return metrics.ReasonIdentity
	case ResultSignatureRejected:
		return metrics.ReasonSignature
	case ResultFingerprintMismatch:
		if errors.Is(o.Err, sharing.ErrPayloadFormat) {
			return metrics.ReasonDecode
		}
		if errors.Is(o.Err, qsp.ErrIntegrity) {
			return metrics.ReasonFingerprint
		}
		return metrics.ReasonExtract
	}
	return o.Code.String()
}

// carrierFiles lists the PNG files in dir by name.
func carrierFiles(dir string) ([]string, error) {
	paths, err := imageio.ListImages(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if name := filepath.Base(p); name != RecoveredFile {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
