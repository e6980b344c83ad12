package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Build information, overridden at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	versionColor = color.New(color.FgGreen, color.Bold)
	detailColor  = color.New(color.Faint)
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cascadia %s %s\n",
				versionColor.Sprint(Version),
				detailColor.Sprintf("(commit %s, built %s)", Commit, BuildDate))
		},
	}
}
