package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
)

func (a *app) setupCommand() *cobra.Command {
	var (
		parties int
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Trusted-dealer setup of a threshold signing group",
		Long: `Generate one shared public seed and an independent key pair per party.
Writes group_public_key.json and party_<id>.sk / .pk to the output
directory. The keys are used by threshold-sign.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := pick(outDir, a.cfg.Paths.Keys)
			r, err := mlwe.NewRing(a.params.Lattice)
			if err != nil {
				return err
			}
			group, keys, err := mlwe.SetupSystem(r, parties)
			if err != nil {
				return err
			}
			groupPath, err := identity.SaveSystem(dir, group, keys)
			if err != nil {
				return err
			}
			a.log.Infof("threshold group of %d parties written to %s", parties, dir)

			out := map[string]any{
				"group_key": groupPath,
				"parties":   parties,
				"directory": dir,
			}
			return a.printer(cmd.OutOrStdout()).Print(out, func(w io.Writer) {
				fmt.Fprintf(w, "Group key: %s\n", groupPath)
				fmt.Fprintf(w, "Parties:   %d (%s .. %s)\n", parties,
					identity.PartyAlias(1), identity.PartyAlias(parties))
			})
		},
	}
	cmd.Flags().IntVarP(&parties, "parties", "n", 5, "number of parties")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default keys directory)")
	return cmd
}
