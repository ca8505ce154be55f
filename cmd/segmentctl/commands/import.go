package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
)

var (
	importDryRun bool
	importForce  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import segments from a file",
	Long: `Import segments from a YAML or JSON file. Segments are matched to
existing user segments by name; existing ones are skipped unless --force
is given, in which case they are updated.

Examples:
  segmentctl import segments.yaml --env staging
  segmentctl import segments.yaml --env staging --dry-run
  segmentctl import segments.yaml --env prod --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := cli.ReadSegmentFile(args[0])
		if err != nil {
			return err
		}
		if len(doc.Segments) == 0 {
			return fmt.Errorf("no segments found in file")
		}
		if verbose {
			fmt.Printf("Found %d segment(s) to import\n", len(doc.Segments))
		}

		if importDryRun {
			fmt.Println("Dry run mode - the following segments would be imported:")
			for _, s := range doc.Segments {
				fmt.Printf("  - %s (match: %s, conditions: %d)\n", s.Name, s.Filter.MatchType, len(s.Filter.Conditions))
			}
			return nil
		}

		c, effectiveEnv, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		existing, err := c.ListSegments(ctx, segment.ListFilter{})
		if err != nil {
			return fmt.Errorf("failed to list segments: %w", err)
		}
		byName := make(map[string]string, len(existing))
		for _, s := range existing {
			if !s.IsSystem {
				byName[s.Name] = s.ID
			}
		}

		var created, updated, skipped, failed int
		for _, s := range doc.Segments {
			id, exists := byName[s.Name]
			switch {
			case exists && !importForce:
				skipped++
				if verbose {
					fmt.Printf("  skipped %s (already exists)\n", s.Name)
				}
			case exists:
				filter := s.Filter
				desc := s.Description
				tags := s.Tags
				if tags == nil {
					tags = []string{}
				}
				if _, err := c.UpdateSegment(ctx, id, segment.Patch{Description: &desc, Tags: tags, Filter: &filter}); err != nil {
					failed++
					fmt.Printf("  failed to update %s: %v\n", s.Name, err)
					continue
				}
				updated++
			default:
				if _, err := c.CreateSegment(ctx, s); err != nil {
					failed++
					fmt.Printf("  failed to create %s: %v\n", s.Name, err)
					continue
				}
				created++
			}
		}

		if !quiet {
			fmt.Printf("Import into '%s' complete: %d created, %d updated, %d skipped, %d failed\n",
				effectiveEnv, created, updated, skipped, failed)
		}
		if failed > 0 {
			return fmt.Errorf("%d segment(s) failed to import", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without making changes")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Update segments that already exist")
}
