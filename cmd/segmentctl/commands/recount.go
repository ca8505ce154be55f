package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var recountCmd = &cobra.Command{
	Use:   "recount <id>",
	Short: "Re-evaluate a segment against the current population",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}

		seg, err := c.Recount(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to recount segment: %w", err)
		}
		if !quiet {
			fmt.Printf("Segment '%s' matches %d client(s)\n", seg.Name, seg.ClientCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recountCmd)
}
