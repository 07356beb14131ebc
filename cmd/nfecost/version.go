package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/custonfe/nfe-cost-service/api"
)

// BuildDate is set at build time with -ldflags "-X main.BuildDate=..."
var BuildDate = "unknown"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "nfecost - NF-e landed cost calculator")
			fmt.Fprintf(out, "Version:    %s\n", api.Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		},
	}
}
