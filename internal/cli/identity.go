package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BackendStack21/qsp-go/identity"
	"github.com/BackendStack21/qsp-go/problems/mlwe"
)

type identityInfo struct {
	Alias       string `json:"alias"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key,omitempty"`
	SecretKey   string `json:"secret_key,omitempty"`
}

func (a *app) identityCommand() *cobra.Command {
	var keysDir string

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage owner identities",
		Long: `Owner identities are lattice key pairs stored as <alias>.pk and
<alias>.sk JSON files in the keys directory. Public keys are handed to
the dealer for lock, secret keys sign the unlock authorization.`,
	}
	cmd.PersistentFlags().StringVar(&keysDir, "keys", "", "keys directory (default from config)")

	create := &cobra.Command{
		Use:   "create [alias...]",
		Short: "Generate identities (alias defaults to user_<unix time>)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := pick(keysDir, a.cfg.Paths.Keys)
			r, err := mlwe.NewRing(a.params.Lattice)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{""}
			}
			created := make([]identityInfo, 0, len(args))
			for _, alias := range args {
				id, err := identity.Generate(r, alias)
				if err != nil {
					return err
				}
				pkPath, skPath, err := identity.Save(dir, id)
				if err != nil {
					return err
				}
				a.log.Infof("identity %s written to %s", id.Alias, dir)
				created = append(created, identityInfo{
					Alias:       id.Alias,
					Fingerprint: id.Fingerprint(),
					PublicKey:   pkPath,
					SecretKey:   skPath,
				})
			}
			return a.printer(cmd.OutOrStdout()).Print(created, func(w io.Writer) {
				for _, c := range created {
					fmt.Fprintf(w, "Identity: %s\n", c.Alias)
					fmt.Fprintf(w, "  Fingerprint: %s\n", c.Fingerprint)
					fmt.Fprintf(w, "  Public key:  %s\n", c.PublicKey)
					fmt.Fprintf(w, "  Secret key:  %s\n", c.SecretKey)
				}
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List public keys in the keys directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := mlwe.NewRing(a.params.Lattice)
			if err != nil {
				return err
			}
			ids, err := identity.DiscoverPublicKeys(r, pick(keysDir, a.cfg.Paths.Keys))
			if err != nil {
				return err
			}
			infos := make([]identityInfo, len(ids))
			for i, id := range ids {
				infos[i] = identityInfo{Alias: id.Alias, Fingerprint: id.Fingerprint()}
			}
			return a.printer(cmd.OutOrStdout()).Print(infos, func(w io.Writer) {
				fmt.Fprintf(w, "%d identities:\n", len(infos))
				for _, info := range infos {
					fmt.Fprintf(w, "  - %-24s %s\n", info.Alias, short(info.Fingerprint))
				}
			})
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

// pick returns flag when set and fallback otherwise.
func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
