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
	updateName        string
	updateDescription string
	updateTags        []string
	updateMatch       string
	updateConditions  []string
	updateFilterFile  string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a segment",
	Long: `Update a user segment. Only the flags that are set are changed.
Changing the filter triggers a recount. System segments cannot be updated.

Examples:
  segmentctl update seg-123 --name "Overdue (90d)"
  segmentctl update seg-123 --tags ""
  segmentctl update seg-123 --condition lastSession:greaterThan:60`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch segment.Patch
		flags := cmd.Flags()

		if flags.Changed("name") {
			patch.Name = &updateName
		}
		if flags.Changed("description") {
			patch.Description = &updateDescription
		}
		if flags.Changed("tags") {
			patch.Tags = updateTags
			if patch.Tags == nil {
				patch.Tags = []string{}
			}
		}
		if flags.Changed("condition") || flags.Changed("filter-file") {
			filter, err := filterFromFlags(updateMatch, updateConditions, updateFilterFile)
			if err != nil {
				return err
			}
			patch.Filter = &filter
		}
		if patch.Name == nil && patch.Description == nil && patch.Tags == nil && patch.Filter == nil {
			return fmt.Errorf("nothing to update, set at least one of --name, --description, --tags, --condition, --filter-file")
		}

		c, _, err := newClient()
		if err != nil {
			return err
		}
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		seg, err := c.UpdateSegment(context.Background(), args[0], patch)
		if err != nil {
			return fmt.Errorf("failed to update segment: %w", err)
		}

		if quiet {
			return nil
		}
		if outFmt != cli.FormatTable {
			return cli.PrintSegment(os.Stdout, seg, outFmt)
		}
		fmt.Printf("Successfully updated segment '%s' (%d client(s))\n", seg.Name, seg.ClientCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateName, "name", "", "New name")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "New description")
	updateCmd.Flags().StringSliceVar(&updateTags, "tags", nil, "Replace tags (empty clears them)")
	updateCmd.Flags().StringVar(&updateMatch, "match", "all", "How conditions combine (all, any)")
	updateCmd.Flags().StringArrayVar(&updateConditions, "condition", nil, "Replace the filter with these conditions (repeatable)")
	updateCmd.Flags().StringVar(&updateFilterFile, "filter-file", "", "Replace the filter from a YAML or JSON file")
}
