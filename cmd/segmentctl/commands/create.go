package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
)

var (
	createDescription string
	createTags        []string
	createMatch       string
	createConditions  []string
	createFilterFile  string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a segment",
	Long: `Create a user segment. Conditions are given as field:operator:value;
values are parsed as JSON when possible, so lists and numbers work too.

Examples:
  segmentctl create "Overdue" --condition lastSession:greaterThan:90
  segmentctl create "CA adults" --condition state:equals:CA --condition age:greaterThanOrEqual:18
  segmentctl create "High value" --condition 'lifetimeValue:between:[1000,5000]'
  segmentctl create "Outreach" --match any --filter-file outreach.yaml --tags ops,q3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(createMatch, createConditions, createFilterFile)
		if err != nil {
			return err
		}
		c, _, err := newClient()
		if err != nil {
			return err
		}
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		seg, err := c.CreateSegment(context.Background(), segment.CreateParams{
			Name:        args[0],
			Description: createDescription,
			Tags:        createTags,
			Filter:      filter,
		})
		if err != nil {
			return fmt.Errorf("failed to create segment: %w", err)
		}

		if quiet {
			return nil
		}
		if outFmt != cli.FormatTable {
			return cli.PrintSegment(os.Stdout, seg, outFmt)
		}
		fmt.Printf("Successfully created segment '%s' (%s) with %d client(s)\n", seg.Name, seg.ID, seg.ClientCount)
		return nil
	},
}

// filterFromFlags reads a filter file when given, otherwise builds the
// filter from --condition flags.
func filterFromFlags(match string, conditions []string, file string) (rules.ConditionSet, error) {
	if file != "" {
		if len(conditions) > 0 {
			return rules.ConditionSet{}, fmt.Errorf("--filter-file and --condition cannot be combined")
		}
		return cli.ReadFilterFile(file)
	}
	if len(conditions) == 0 {
		return rules.ConditionSet{}, fmt.Errorf("at least one --condition or a --filter-file is required")
	}
	return cli.BuildFilter(match, conditions)
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createDescription, "description", "", "Segment description")
	createCmd.Flags().StringSliceVar(&createTags, "tags", nil, "Comma-separated tags")
	createCmd.Flags().StringVar(&createMatch, "match", "all", "How conditions combine (all, any)")
	createCmd.Flags().StringArrayVar(&createConditions, "condition", nil, "Condition as field:operator:value (repeatable)")
	createCmd.Flags().StringVar(&createFilterFile, "filter-file", "", "Read the filter from a YAML or JSON file")
}
