// Package main provides the Nested ML Framework CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.0.1-dev"

func main() {
	root := &cobra.Command{
		Use:   "nested",
		Short: "Nested ML Framework - multi-timescale hierarchical optimization",
		Long: "Nested trains models whose parameters are partitioned across\n" +
			"optimization levels firing at independent frequencies, exchanging\n" +
			"context through compressible channels and backed by a surprise-\n" +
			"driven associative memory.",
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Nested ML Framework %s\n", version)
		},
	})

	root.AddCommand(newTrainCmd())
	root.AddCommand(newInspectCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
