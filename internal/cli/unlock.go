package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/dealer"
	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
)

type carrierView struct {
	File  string `json:"file"`
	Index int    `json:"share_index,omitempty"`
	Owner string `json:"owner,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error,omitempty"`
}

type unlockView struct {
	Code      string        `json:"code"`
	SessionID string        `json:"session_id"`
	Threshold int           `json:"threshold"`
	Accepted  []int         `json:"accepted"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Carriers  []carrierView `json:"carriers"`
}

func newUnlockView(res *dealer.UnlockResult, err error) unlockView {
	v := unlockView{
		Code:      res.Code.String(),
		SessionID: res.SessionID,
		Threshold: res.Threshold,
		Accepted:  res.Accepted,
		Output:    res.OutputPath,
		Carriers:  make([]carrierView, len(res.Carriers)),
	}
	if err != nil {
		v.Error = err.Error()
	}
	for i, c := range res.Carriers {
		v.Carriers[i] = carrierView{File: c.File, Index: c.Index, Owner: c.Owner, Code: c.Code.String()}
		if c.Err != nil {
			v.Carriers[i].Error = c.Err.Error()
		}
	}
	return v
}

func (a *app) unlockCommand() *cobra.Command {
	var (
		req       dealer.UnlockRequest
		dealerKey string
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Restore a secret from its carrier images",
		Long: `Unlock extracts the share hidden in every carrier of the assets
directory, checks it against asset_manifest.json and asks its registered
owner (secret key in the keys directory) to sign a fresh session. Once
threshold shares are authorized the secret is rebuilt and written to
RECOVERED_SECRET.png in the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AssetsDir = pick(req.AssetsDir, a.cfg.Paths.Assets)
			req.KeysDir = pick(req.KeysDir, a.cfg.Paths.Keys)
			req.OutputDir = pick(req.OutputDir, a.cfg.Paths.Restored)

			if dealerKey != "" {
				r, err := mlwe.NewRing(a.params.Lattice)
				if err != nil {
					return err
				}
				id, err := identity.LoadPublicKey(r, dealerKey)
				if err != nil {
					return fmt.Errorf("dealer key: %w", err)
				}
				req.Dealer = &id.PublicKey
			}

			unlocker, err := dealer.NewUnlocker(a.params, a.log)
			if err != nil {
				return err
			}
			unlocker.SetWorkers(workers)
			res, err := unlocker.Unlock(cmd.Context(), req)
			if res == nil {
				return err
			}

			view := newUnlockView(res, err)
			if perr := a.printer(cmd.OutOrStdout()).Print(view, func(w io.Writer) {
				printUnlock(w, res)
			}); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if res.Code != dealer.ResultSuccess {
				return fmt.Errorf("%w: unlock finished with %s", qsp.ErrRejected, res.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.AssetsDir, "assets", "", "carrier and manifest directory (default from config)")
	cmd.Flags().StringVar(&req.KeysDir, "keys", "", "owner secret key directory (default from config)")
	cmd.Flags().StringVar(&req.OutputDir, "out", "", "output directory (default from config)")
	cmd.Flags().StringVar(&dealerKey, "dealer-key", "", "dealer public key (.pk) the secret must be signed with")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent extractions (default number of CPUs)")
	return cmd
}

func printUnlock(w io.Writer, res *dealer.UnlockResult) {
	fmt.Fprintf(w, "Session: %s\n", res.SessionID)
	for _, c := range res.Carriers {
		status := c.Code.String()
		if c.Err != nil {
			status += ": " + c.Err.Error()
		}
		fmt.Fprintf(w, "  %-20s share %-3d %-16s %s\n", c.File, c.Index, c.Owner, status)
	}
	fmt.Fprintf(w, "Authorized %d of %d required shares %v\n", len(res.Accepted), res.Threshold, res.Accepted)
	if res.Code == dealer.ResultSuccess {
		fmt.Fprintf(w, "Secret %s recovered to %s\n", res.Secret.Shape, res.OutputPath)
	} else {
		fmt.Fprintf(w, "Unlock failed: %s\n", res.Code)
	}
}
