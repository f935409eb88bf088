package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/internal/metrics"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
	"github.com/BackendStack21/qsp-go/threshold"
	"github.com/BackendStack21/qsp-go/utils"
)

type thresholdView struct {
	Signers   []int  `json:"signers"`
	Attempts  int    `json:"attempts"`
	Timestamp int64  `json:"timestamp"`
	Digest    string `json:"digest"`
	Verified  bool   `json:"verified"`
	Algebraic bool   `json:"algebraic"`
}

func (a *app) thresholdSignCommand() *cobra.Command {
	var (
		dir         string
		partyIDs    []int
		thresholdT  int
		message     string
		messageFile string
	)
	cmd := &cobra.Command{
		Use:   "threshold-sign",
		Short: "Sign a message with a quorum of threshold parties",
		Long: `Run the interactive threshold protocol locally for the listed parties:
every party commits, the aggregator derives the challenge and every
party responds. Any rejection restarts the round with fresh masks up
to signing.max_attempts times. The signature is then verified against
the group key and algebraically against the signers' summed key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = pick(dir, a.cfg.Paths.Keys)
			msg, err := readMessage(message, messageFile)
			if err != nil {
				return err
			}
			if len(partyIDs) == 0 {
				return fmt.Errorf("%w: at least one --party is required", qsp.ErrValidation)
			}
			if thresholdT == 0 {
				thresholdT = len(partyIDs)
			}

			r, err := mlwe.NewRing(a.params.Lattice)
			if err != nil {
				return err
			}
			group, total, err := identity.LoadGroupKey(r, filepath.Join(dir, identity.GroupKeyFile))
			if err != nil {
				return err
			}
			ids := append([]int(nil), partyIDs...)
			sort.Ints(ids)

			keys := make([]qsp.PartyKey, 0, len(ids))
			signers := make([]*threshold.Signer, 0, len(ids))
			for i, id := range ids {
				if id < 1 || id > total || (i > 0 && ids[i-1] == id) {
					return fmt.Errorf("%w: invalid or duplicate party %d (group has %d)", qsp.ErrValidation, id, total)
				}
				key, err := identity.LoadParty(r, dir, id)
				if err != nil {
					return err
				}
				s, err := threshold.NewSigner(r, key)
				if err != nil {
					return err
				}
				keys = append(keys, key)
				signers = append(signers, s)
			}
			agg, err := threshold.NewAggregator(r, thresholdT)
			if err != nil {
				return err
			}

			sig, attempts, err := threshold.RunSession(cmd.Context(), signers, agg, msg, a.params.Lattice.MaxSignAttempts)
			metrics.RecordSignAttempts(attempts, err == nil)
			if err != nil {
				return fmt.Errorf("threshold signing failed after %d attempts: %w", attempts, err)
			}
			a.log.Infof("threshold signature by parties %v after %d attempts", sig.Signers, attempts)

			signersKey, err := mlwe.SubsetKey(r, mlwe.PublicKeys(keys), sig.Signers)
			if err != nil {
				return err
			}
			view := thresholdView{
				Signers:   sig.Signers,
				Attempts:  attempts,
				Timestamp: sig.Timestamp,
				Digest:    hex.EncodeToString(utils.SHA256(mlwe.SerializePolyVec(sig.Z), mlwe.SerializePolyVec(sig.WSum))),
				Verified:  agg.Verify(group, msg, sig),
				Algebraic: agg.VerifyAlgebraic(group.Seed, signersKey, msg, sig),
			}
			if perr := a.printer(cmd.OutOrStdout()).Print(view, func(w io.Writer) {
				fmt.Fprintf(w, "Signers:   %v\n", view.Signers)
				fmt.Fprintf(w, "Attempts:  %d\n", view.Attempts)
				fmt.Fprintf(w, "Timestamp: %d\n", view.Timestamp)
				fmt.Fprintf(w, "Digest:    %s\n", view.Digest)
				fmt.Fprintf(w, "Verified:  %t (algebraic %t)\n", view.Verified, view.Algebraic)
			}); perr != nil {
				return perr
			}
			if !view.Verified || !view.Algebraic {
				return fmt.Errorf("%w: threshold signature did not verify", qsp.ErrIntegrity)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory written by setup (default keys directory)")
	cmd.Flags().IntSliceVarP(&partyIDs, "party", "p", nil, "party id taking part (repeatable)")
	cmd.Flags().IntVarP(&thresholdT, "threshold", "t", 0, "responses required (default number of parties)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message to sign")
	cmd.Flags().StringVar(&messageFile, "message-file", "", "read the message from a file (- for stdin)")
	return cmd
}

// readMessage returns the inline message or the contents of file.
func readMessage(message, file string) ([]byte, error) {
	switch {
	case message != "" && file != "":
		return nil, fmt.Errorf("%w: use --message or --message-file, not both", qsp.ErrValidation)
	case message != "":
		return []byte(message), nil
	case file == "-":
		data, err := io.ReadAll(io.LimitReader(os.Stdin, utils.MaxMessageSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
		}
		return data, nil
	case file != "":
		info, err := os.Stat(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
		}
		if info.Size() > utils.MaxMessageSize {
			return nil, fmt.Errorf("%w: message file exceeds %d bytes", qsp.ErrValidation, utils.MaxMessageSize)
		}
		// #nosec G304 - message path is provided by the user
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: a message is required", qsp.ErrValidation)
}
