package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Activate a segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], true)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a segment",
	Long: `Deactivate a user segment. System segments always stay active.

Example:
  segmentctl deactivate seg-123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], false)
	},
}

func setActive(id string, active bool) error {
	c, _, err := newClient()
	if err != nil {
		return err
	}

	seg, err := c.SetActive(context.Background(), id, active)
	if err != nil {
		return fmt.Errorf("failed to update segment: %w", err)
	}
	if !quiet {
		state := "inactive"
		if seg.IsActive {
			state = "active"
		}
		fmt.Printf("Segment '%s' is now %s\n", seg.Name, state)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
}
