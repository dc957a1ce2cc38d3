package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertex86/x86core/x86"
)

func newSelftestCmd() *cobra.Command {
	var vectorsDir string
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the JSON single-step vector corpus against the core",
		RunE: func(cmd *cobra.Command, args []string) error {
			passed, failed, failures, err := x86.RunVectors(vectorsDir)
			if err != nil {
				return err
			}
			for _, f := range failures {
				fmt.Fprintln(cmd.OutOrStdout(), "FAIL", f)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d passed, %d failed\n", passed, failed)
			if failed > 0 {
				return fmt.Errorf("%d vector failures", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vectorsDir, "vectors", "testdata/vectors", "directory of JSON single-step test vectors")
	return cmd
}
