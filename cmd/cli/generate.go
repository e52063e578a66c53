package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stylemorphapi/dbhelper"
	"stylemorphapi/models"
	"stylemorphapi/services"

	"github.com/spf13/cobra"
)

const instructionsSeparator = "::"

type generateOptions struct {
	photoPath string
	outfits   []string
	outputDir string
	model     string
	audit     bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render one try-on image per outfit",
		Long: `Render the person in --photo wearing each outfit.

An outfit is a comma separated list of garment image paths, optionally followed
by "::" and free text styling instructions. Either part may be empty, but not both.`,
		Example: `  # Two outfits, the second one instructions only
  stylemorph generate --photo me.jpg \
    --outfit "top.png,pants.png::make it winter-themed" \
    --outfit "::a red evening dress" --out ./renders`,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := services.ParseLLMModelName(opts.model)
			if err != nil {
				return err
			}
			generator, err := services.NewGoogleTryOnGenerator(cmd.Context(), model)
			if err != nil {
				return fmt.Errorf("failed to initialize Gemini client: %w", err)
			}
			var recorder services.BatchRecorder
			if opts.audit {
				recorder = dbhelper.SetupRecorder()
			}
			orchestrator := services.NewTryOnOrchestrator(generator, recorder, "cli")
			return runGenerate(cmd.Context(), opts, orchestrator, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.photoPath, "photo", "", "Path to the photo of the person")
	cmd.Flags().StringArrayVar(&opts.outfits, "outfit", nil, `Outfit as "garment.png,other.png::instructions" (repeatable)`)
	cmd.Flags().StringVar(&opts.outputDir, "out", ".", "Directory for rendered images")
	cmd.Flags().StringVar(&opts.model, "model", services.Flash25Image.String(), "Gemini image model")
	cmd.Flags().BoolVar(&opts.audit, "audit", false, "Record the batch in the database configured by DB_* variables")
	_ = cmd.MarkFlagRequired("photo")
	_ = cmd.MarkFlagRequired("outfit")

	return cmd
}

func runGenerate(ctx context.Context, opts generateOptions, runner services.BatchRunner, out io.Writer) error {
	photo, err := loadImageAsset(opts.photoPath)
	if err != nil {
		return fmt.Errorf("photo: %w", err)
	}

	outfits := make([]models.OutfitSpec, 0, len(opts.outfits))
	for i, value := range opts.outfits {
		outfit, err := parseOutfitFlag(strconv.Itoa(i+1), value)
		if err != nil {
			return err
		}
		outfits = append(outfits, outfit)
	}

	outcomes, err := runner.RunBatch(ctx, &photo, outfits)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
			fmt.Fprintf(out, "outfit %s: failed: %s\n", outcome.OutfitID, *outcome.Error)
			continue
		}
		if outcome.ImageURL != nil {
			data, err := services.DecodeTryOnImage(*outcome.ImageURL)
			if err != nil {
				return fmt.Errorf("outfit %s: %w", outcome.OutfitID, err)
			}
			path := filepath.Join(opts.outputDir, fmt.Sprintf("stylemorph-outfit-%s.png", outcome.OutfitID))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("outfit %s: failed to write image: %w", outcome.OutfitID, err)
			}
			fmt.Fprintf(out, "outfit %s: saved %s\n", outcome.OutfitID, path)
		}
		if outcome.TextResponse != nil {
			fmt.Fprintf(out, "outfit %s: %s\n", outcome.OutfitID, *outcome.TextResponse)
		}
	}
	if failed > 0 && failed == len(outcomes) {
		return fmt.Errorf("all %d outfits failed", failed)
	}
	return nil
}

// parseOutfitFlag reads "a.png,b.png::instructions" into an outfit.
func parseOutfitFlag(id string, value string) (models.OutfitSpec, error) {
	outfit := models.OutfitSpec{ID: id}
	garmentList, instructions, _ := strings.Cut(value, instructionsSeparator)
	outfit.Instructions = strings.TrimSpace(instructions)

	for _, path := range strings.Split(garmentList, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		garment, err := loadImageAsset(path)
		if err != nil {
			return models.OutfitSpec{}, fmt.Errorf("outfit %s: %w", id, err)
		}
		outfit.Garments = append(outfit.Garments, garment)
	}
	return outfit, nil
}

func loadImageAsset(path string) (models.ImageAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageAsset{}, err
	}
	return services.NewImageAssetFromUpload(data, filepath.Base(path), "")
}
