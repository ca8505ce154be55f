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
	listSearch     string
	listTag        string
	listActiveOnly bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List segments",
	Long: `List segments in the selected environment.

Examples:
  segmentctl list --env prod
  segmentctl list --tag outreach --active-only
  segmentctl list --search overdue --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		segs, err := c.ListSegments(context.Background(), segment.ListFilter{
			Search:     listSearch,
			Tag:        listTag,
			ActiveOnly: listActiveOnly,
		})
		if err != nil {
			return fmt.Errorf("failed to list segments: %w", err)
		}

		if quiet {
			return nil
		}
		if len(segs) == 0 && outFmt == cli.FormatTable {
			fmt.Println("No segments found")
			return nil
		}
		return cli.PrintSegments(os.Stdout, segs, outFmt)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listSearch, "search", "", "Match name or description")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Only segments carrying this tag")
	listCmd.Flags().BoolVar(&listActiveOnly, "active-only", false, "Show only active segments")
}
