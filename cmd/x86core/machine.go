package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertex86/x86core/x86/machinedesc"
)

func newMachineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine FILE",
		Short: "Print the resolved CPU model/autoStart from a machine description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read machine description: %w", err)
			}
			doc, err := machinedesc.Load(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model=%s autoStart=%v extraKeys=%d\n",
				doc.CPU.Model, doc.CPU.AutoStart, len(doc.Extra))
			return nil
		},
	}
	return cmd
}
