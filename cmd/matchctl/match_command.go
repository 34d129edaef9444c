package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfmatch/backend/config"
	"github.com/shelfmatch/backend/internal/domain"
)

func newMatchCommand() *cobra.Command {
	var (
		id       string
		brand    string
		name     string
		size     string
		retailer string
		image    string
		debug    bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a single detection item against the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			item := domain.DetectionItem{
				ID:              id,
				Brand:           brand,
				ProductName:     name,
				Size:            size,
				RetailerContext: retailer,
				ReferenceImage:  image,
			}
			if err := item.Validate(); err != nil {
				return fmt.Errorf("invalid item: %w", err)
			}

			pipeline, _, cleanup, err := buildPipeline(cfg, debug)
			if err != nil {
				return err
			}
			defer cleanup()

			decision := pipeline.Process(cmd.Context(), item)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(decision)
			}

			printDecisions([]domain.MatchDecision{decision})
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Detection item id (required)")
	cmd.Flags().StringVar(&brand, "brand", "", "Extracted brand")
	cmd.Flags().StringVar(&name, "name", "", "Extracted product name")
	cmd.Flags().StringVar(&size, "size", "", "Extracted size")
	cmd.Flags().StringVar(&retailer, "retailer", "", "Retailer context, e.g. walmart")
	cmd.Flags().StringVar(&image, "image", "", "Reference image URL or storage key (required)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
