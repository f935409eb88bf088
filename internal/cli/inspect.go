package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/dealer"
	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/imageio"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/sharing"
	"github.com/BackendStack21/qsp-go/stego"
)

type carrierInfo struct {
	File          string `json:"file"`
	Shape         string `json:"shape"`
	Capacity      int    `json:"capacity_bytes"`
	PayloadBytes  int    `json:"payload_bytes"`
	Fingerprint   string `json:"share_fingerprint"`
	ShareIndex    int    `json:"share_index"`
	Modulus       int    `json:"modulus"`
	ShareShape    string `json:"share_shape"`
	OriginalShape string `json:"original_shape"`
	DealerSigned  bool   `json:"dealer_signed"`
}

func (a *app) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Describe a manifest, key file or carrier image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			p := a.printer(cmd.OutOrStdout())
			switch ext := strings.ToLower(filepath.Ext(path)); {
			case ext == identity.PublicKeyExt || ext == identity.SecretKeyExt:
				return a.inspectKey(p, path, ext)
			case ext == ".json":
				return inspectManifest(p, path)
			case imageio.IsImage(path):
				return a.inspectCarrier(p, path)
			}
			return fmt.Errorf("%w: cannot inspect %s", qsp.ErrValidation, path)
		},
	}
}

func (a *app) inspectKey(p *Printer, path, ext string) error {
	r, err := mlwe.NewRing(a.params.Lattice)
	if err != nil {
		return err
	}
	load := identity.LoadPublicKey
	if ext == identity.SecretKeyExt {
		load = identity.LoadSecretKey
	}
	id, err := load(r, path)
	if err != nil {
		return err
	}
	info := map[string]any{
		"alias":       id.Alias,
		"fingerprint": id.Fingerprint(),
		"timestamp":   id.Timestamp,
		"secret":      id.HasSecret(),
	}
	return p.Print(info, func(w io.Writer) {
		fmt.Fprintf(w, "Alias:       %s\n", id.Alias)
		fmt.Fprintf(w, "Fingerprint: %s\n", id.Fingerprint())
		fmt.Fprintf(w, "Created:     %d\n", id.Timestamp)
		fmt.Fprintf(w, "Secret key:  %t\n", id.HasSecret())
	})
}

func inspectManifest(p *Printer, path string) error {
	m, err := dealer.LoadManifest(path)
	if err != nil {
		return err
	}
	return p.Print(m, func(w io.Writer) {
		fmt.Fprintf(w, "Manifest %s (%s)\n", path, m.Version)
		fmt.Fprintf(w, "Threshold: %d of %d\n", m.Threshold, m.TotalShares)
		fmt.Fprintf(w, "Created:   %s\n", m.CreatedAt)
		if m.DealerFingerprint != "" {
			fmt.Fprintf(w, "Dealer:    %s\n", short(m.DealerFingerprint))
		}
		for _, e := range m.Registry {
			fmt.Fprintf(w, "  %-20s share %d mod %-6d owner %-16s %s\n",
				e.CarrierFile, e.ShareIndex, e.Modulus, e.OwnerAlias, short(e.OwnerFingerprint))
		}
	})
}

func (a *app) inspectCarrier(p *Printer, path string) error {
	img, err := imageio.Load(path)
	if err != nil {
		return err
	}
	codec, err := stego.NewCodec(a.params.Stego)
	if err != nil {
		return err
	}
	data, err := codec.Extract(img)
	if err != nil {
		return err
	}
	share, err := sharing.DecodePayload(data)
	if err != nil {
		return err
	}
	info := carrierInfo{
		File:          filepath.Base(path),
		Shape:         img.Shape.String(),
		Capacity:      stego.MaxPayload(img.Shape),
		PayloadBytes:  len(data),
		Fingerprint:   sharing.Fingerprint(data),
		ShareIndex:    share.Index,
		Modulus:       share.Modulus,
		ShareShape:    share.Shape.String(),
		OriginalShape: share.OriginalShape.String(),
		DealerSigned:  len(share.Signature) > 0,
	}
	return p.Print(info, func(w io.Writer) {
		fmt.Fprintf(w, "Carrier:     %s %s\n", info.File, info.Shape)
		fmt.Fprintf(w, "Payload:     %d of %d bytes\n", info.PayloadBytes, info.Capacity)
		fmt.Fprintf(w, "Fingerprint: %s\n", info.Fingerprint)
		fmt.Fprintf(w, "Share:       %d mod %d, %s (secret %s)\n", info.ShareIndex, info.Modulus, info.ShareShape, info.OriginalShape)
		fmt.Fprintf(w, "Dealer signed: %t\n", info.DealerSigned)
	})
}
