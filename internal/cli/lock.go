package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/dealer"
	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/imageio"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/report"
)

func (a *app) lockCommand() *cobra.Command {
	var (
		req        dealer.LockRequest
		dealerKey  string
		reportPath string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Split a secret image into shares hidden in cover images",
		Long: `Lock scrambles the secret, splits it into n CRT shares of which any t
restore it, and hides share i inside the i-th cover (by file name) for
the i-th owner public key (by alias). Carriers and asset_manifest.json
are written to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.CoversDir = pick(req.CoversDir, a.cfg.Paths.Covers)
			req.KeysDir = pick(req.KeysDir, a.cfg.Paths.Keys)
			req.OutputDir = pick(req.OutputDir, a.cfg.Paths.Assets)
			if req.Shares == 0 {
				req.Shares = a.cfg.Sharing.Shares
			}
			if req.Threshold == 0 {
				req.Threshold = a.cfg.Sharing.Threshold
			}

			if dealerKey != "" {
				r, err := mlwe.NewRing(a.params.Lattice)
				if err != nil {
					return err
				}
				if req.Dealer, err = identity.LoadSecretKey(r, dealerKey); err != nil {
					return fmt.Errorf("dealer key: %w", err)
				}
			}

			locker, err := dealer.NewLocker(a.params, a.log)
			if err != nil {
				return err
			}
			locker.SetWorkers(workers)
			manifest, err := locker.Lock(cmd.Context(), req)
			if err != nil {
				return err
			}

			if reportPath != "" {
				if err := writeLockReport(reportPath, req, manifest); err != nil {
					return err
				}
				a.log.Infof("report written to %s", reportPath)
			}

			return a.printer(cmd.OutOrStdout()).Print(manifest, func(w io.Writer) {
				fmt.Fprintf(w, "Locked %d shares (threshold %d) into %s\n",
					manifest.TotalShares, manifest.Threshold, req.OutputDir)
				for _, e := range manifest.Registry {
					fmt.Fprintf(w, "  %-20s share %d  owner %-16s %s\n",
						e.CarrierFile, e.ShareIndex, e.OwnerAlias, short(e.ShareFingerprint))
				}
				if manifest.DealerFingerprint != "" {
					fmt.Fprintf(w, "Dealer: %s\n", short(manifest.DealerFingerprint))
				}
			})
		},
	}
	cmd.Flags().StringVar(&req.SecretPath, "secret", "", "secret image (PNG or JPEG)")
	cmd.Flags().StringVar(&req.CoversDir, "covers", "", "cover image directory (default from config)")
	cmd.Flags().StringVar(&req.KeysDir, "keys", "", "owner public key directory (default from config)")
	cmd.Flags().StringVar(&req.OutputDir, "out", "", "carrier output directory (default from config)")
	cmd.Flags().IntVarP(&req.Shares, "shares", "n", 0, "number of shares (default from config)")
	cmd.Flags().IntVarP(&req.Threshold, "threshold", "t", 0, "shares needed to unlock (default from config)")
	cmd.Flags().StringVar(&dealerKey, "dealer-key", "", "dealer secret key (.sk) that signs the secret")
	cmd.Flags().StringVar(&reportPath, "report", "", "write an HTML quality report to this path")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent embeds (default number of CPUs)")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

// writeLockReport compares each carrier with the cover it was made from.
// Lock pairs share i with the i-th cover in name order.
func writeLockReport(path string, req dealer.LockRequest, m *qsp.Manifest) error {
	covers, err := imageio.ListImages(req.CoversDir)
	if err != nil {
		return err
	}
	stats := make([]report.CarrierStats, 0, len(m.Registry))
	for _, e := range m.Registry {
		if e.ShareIndex < 1 || e.ShareIndex > len(covers) {
			return fmt.Errorf("%w: no cover for share %d", qsp.ErrValidation, e.ShareIndex)
		}
		cover, err := imageio.Load(covers[e.ShareIndex-1])
		if err != nil {
			return err
		}
		carrier, err := imageio.Load(filepath.Join(req.OutputDir, e.CarrierFile))
		if err != nil {
			return err
		}
		s, err := report.Compare(e.CarrierFile, cover, carrier)
		if err != nil {
			return err
		}
		stats = append(stats, s)
	}
	return report.WriteFile(path, stats)
}
