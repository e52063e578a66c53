package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stylemorph",
		Short: "Virtual try-on renders from a photo and garment images",
		Long: `StyleMorph renders a person wearing one or more outfits.

Each outfit is a set of garment images plus optional styling instructions.
All outfits of a batch are generated concurrently with Gemini.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newGenerateCmd())

	return cmd
}
