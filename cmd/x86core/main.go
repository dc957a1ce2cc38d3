// Command x86core is a small CLI over the x86 execution core: running the
// JSON single-step vector corpus, single-stepping a flat binary image, and
// inspecting a machine description document. It is read-only introspection
// over the core's control interface, not the interactive debugger the core
// itself places out of scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "x86core",
		Short: "Tooling for the x86 execution core",
	}
	root.AddCommand(newSelftestCmd())
	root.AddCommand(newStepCmd())
	root.AddCommand(newMachineCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
