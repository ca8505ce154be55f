package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a segment",
	Long: `Show a segment and its conditions.

Examples:
  segmentctl get seg-123
  segmentctl get seg-123 --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		seg, err := c.GetSegment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get segment: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintSegment(os.Stdout, seg, outFmt)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
