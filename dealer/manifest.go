// Package dealer wires the signature, sharing and stego engines into the
// lock and unlock flows over directories of images and key files.
package dealer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

const (
	// ManifestFile is the manifest name inside an asset directory.
	ManifestFile = "asset_manifest.json"

	// RecoveredFile is the name Unlock writes the secret under.
	RecoveredFile = "RECOVERED_SECRET.png"

	maxManifestSize = 4 << 20
)

// CarrierName returns the stego file name of share index (1-based).
func CarrierName(index int) string {
	return fmt.Sprintf("locked_asset_%d.png", index)
}

// SecretDigest is the message the dealer signs: SHA-256 over the raster's
// shape and samples.
func SecretDigest(r *qsp.Raster) []byte {
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(r.H))
	binary.BigEndian.PutUint32(hdr[4:], uint32(r.W))
	binary.BigEndian.PutUint32(hdr[8:], uint32(r.C))
	return utils.SHA256(hdr[:], r.Pix)
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m *qsp.Manifest) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	return nil
}

// LoadManifest reads and validates a manifest.
func LoadManifest(path string) (*qsp.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	if info.Size() > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest too large: %d bytes", qsp.ErrIO, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	var m qsp.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", qsp.ErrValidation, err)
	}
	if err := validateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validateManifest(m *qsp.Manifest) error {
	if m.Version != qsp.ManifestVersion {
		return fmt.Errorf("%w: unsupported manifest version %q", qsp.ErrValidation, m.Version)
	}
	if m.Threshold < 1 || m.Threshold > m.TotalShares {
		return fmt.Errorf("%w: manifest threshold %d of %d shares", qsp.ErrValidation, m.Threshold, m.TotalShares)
	}
	if len(m.Registry) != m.TotalShares {
		return fmt.Errorf("%w: manifest lists %d carriers for %d shares", qsp.ErrValidation, len(m.Registry), m.TotalShares)
	}
	seen := make(map[string]bool, len(m.Registry))
	for _, e := range m.Registry {
		if e.CarrierFile != filepath.Base(e.CarrierFile) {
			return fmt.Errorf("%w: carrier %q is not a plain file name", qsp.ErrValidation, e.CarrierFile)
		}
		if seen[e.CarrierFile] {
			return fmt.Errorf("%w: carrier %q listed twice", qsp.ErrValidation, e.CarrierFile)
		}
		seen[e.CarrierFile] = true
	}
	return nil
}
