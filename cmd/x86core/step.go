package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertex86/x86core/x86"
)

var modelByName = map[string]x86.Model{
	"8086": x86.Model8086, "8088": x86.Model8088,
	"80186": x86.Model80186, "80188": x86.Model80188,
	"80286": x86.Model80286, "80386": x86.Model80386,
}

func newStepCmd() *cobra.Command {
	var imagePath, modelName string
	var count int
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Single-step a flat binary image and print register/flag state",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, ok := modelByName[modelName]
			if !ok {
				return fmt.Errorf("unknown model %q", modelName)
			}
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			bus := x86.NewFlatBus(1024 * 1024)
			copy(bus.Mem, data)
			cpu := x86.NewCPU(model, bus)

			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				if !cpu.Running() {
					break
				}
				cpu.Step()
				fmt.Fprintf(out, "EIP=%08X EAX=%08X EBX=%08X ECX=%08X EDX=%08X PS=%08X\n",
					cpu.EIP, cpu.EAX, cpu.EBX, cpu.ECX, cpu.EDX, cpu.PS())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "flat binary image loaded at linear address 0")
	cmd.Flags().StringVar(&modelName, "model", "80386", "CPU model (8086,8088,80186,80188,80286,80386)")
	cmd.Flags().IntVar(&count, "count", 1, "number of instructions to step")
	cmd.MarkFlagRequired("image")
	return cmd
}
