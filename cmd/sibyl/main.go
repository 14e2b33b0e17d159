package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "sibyl",
		Short:   "Sibyl — rate-limited saying service with a multi-tier result cache",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newPresetsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
