package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/idscan/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func printVersion(w io.Writer) {
	b := version.Info()
	_, _ = fmt.Fprintf(w, "idscan version %s\n", b.Version)
	_, _ = fmt.Fprintf(w, "Commit: %s\n", b.Commit)
	_, _ = fmt.Fprintf(w, "Date: %s\n", b.Date)
	_, _ = fmt.Fprintf(w, "Go: %s %s\n", b.Go, b.Platform)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
