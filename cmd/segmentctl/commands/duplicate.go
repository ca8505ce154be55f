package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var duplicateCmd = &cobra.Command{
	Use:   "duplicate <id>",
	Short: "Copy a segment",
	Long: `Copy a segment into a new user segment named "<name> (Copy)".
The copied count is approximate until the next recount.

Example:
  segmentctl duplicate seg-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}

		seg, err := c.DuplicateSegment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to duplicate segment: %w", err)
		}
		if !quiet {
			fmt.Printf("Created '%s' (%s)\n", seg.Name, seg.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(duplicateCmd)
}
