package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	qsp "github.com/BackendStack21/qsp-go"
)

// Version information (injected at build time via -ldflags)
var (
	GitCommit = "unknown" // Set via -ldflags "-X github.com/BackendStack21/qsp-go/internal/cli.GitCommit=abc123"
	BuildDate = "unknown"
)

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":          qsp.Version,
				"manifest_version": qsp.ManifestVersion,
				"commit":           GitCommit,
				"build_date":       BuildDate,
				"go_version":       runtime.Version(),
				"os":               runtime.GOOS,
				"arch":             runtime.GOARCH,
			}
			return a.printer(cmd.OutOrStdout()).Print(info, func(w io.Writer) {
				fmt.Fprintf(w, "qsp-cli version %s\n", qsp.Version)
				fmt.Fprintf(w, "Manifest format: %s\n", qsp.ManifestVersion)
				fmt.Fprintf(w, "Git commit: %s\n", GitCommit)
				fmt.Fprintf(w, "Build date: %s\n", BuildDate)
				fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			})
		},
	}
}
