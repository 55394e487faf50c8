package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nested-ml/nested/internal/checkpoint"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <checkpoint>",
		Short: "Print the contents of a .nstd checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := checkpoint.ReadHeader(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("format v%d, created %s\n", header.FormatVersion, header.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("run %s: step %d, loss %.6f\n", header.Run.RunID, header.Run.Step, header.Run.Loss)
			for k, v := range header.Metadata {
				fmt.Printf("  %s: %s\n", k, v)
			}
			fmt.Printf("%d tensors:\n", len(header.Tensors))
			for _, meta := range header.Tensors {
				fmt.Printf("  %-40s %-12v %d bytes\n", meta.Name, meta.Shape, meta.Size)
			}
			return nil
		},
	}
}
