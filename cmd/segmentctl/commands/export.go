package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
)

var (
	exportOutput string
	exportTag    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export segments to a file",
	Long: `Export user segments to a YAML or JSON file. System segments are
skipped since every environment seeds its own.

Examples:
  segmentctl export --env prod --output segments.yaml
  segmentctl export --env prod --tag outreach --output outreach.json
  segmentctl export --env prod`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, effectiveEnv, err := newClient()
		if err != nil {
			return err
		}

		segs, err := c.ListSegments(context.Background(), segment.ListFilter{Tag: exportTag})
		if err != nil {
			return fmt.Errorf("failed to list segments: %w", err)
		}
		doc := cli.ToSegmentFile(segs)

		if exportOutput == "" {
			return cli.PrintValue(os.Stdout, doc, cli.FormatYAML)
		}
		if err := cli.WriteSegmentFile(exportOutput, doc); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("Exported %d segment(s) from environment '%s' to %s\n", len(doc.Segments), effectiveEnv, exportOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (.yaml, .yml or .json); stdout when empty")
	exportCmd.Flags().StringVar(&exportTag, "tag", "", "Only export segments carrying this tag")
}
