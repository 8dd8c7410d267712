// Command capacityd serves the capacity engine over HTTP.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "capacityd",
		Short:        "capacityd tracks per-product resource quotas and moves limit between products.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCheckCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
