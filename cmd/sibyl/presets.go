package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sibyl-ai/sibyl/pkg/preset"
)

func newPresetsCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Validate and list a preset catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := preset.LoadCatalog(filePath)
			if err != nil {
				return err
			}

			for _, p := range catalog.All() {
				fmt.Printf("%-16s %-24s %d prompts\n", p.ID, p.Name, len(p.UserPrompts))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "presets.yaml", "path to presets file")
	return cmd
}
