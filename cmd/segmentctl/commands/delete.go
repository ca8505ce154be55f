package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a segment",
	Long: `Delete a user segment. System segments cannot be deleted.

Examples:
  segmentctl delete seg-123 --env prod
  segmentctl delete seg-123 --env prod --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		c, effectiveEnv, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if !deleteForce && !quiet {
			seg, err := c.GetSegment(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get segment: %w", err)
			}
			if seg.IsSystem {
				return fmt.Errorf("segment '%s' is a system segment and cannot be deleted", seg.Name)
			}
			ok, err := confirm(fmt.Sprintf("Delete segment '%s' (%d client(s)) from environment '%s'?", seg.Name, seg.ClientCount, effectiveEnv))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Deletion cancelled")
				return nil
			}
		}

		if err := c.DeleteSegment(ctx, id); err != nil {
			return fmt.Errorf("failed to delete segment: %w", err)
		}

		if !quiet {
			fmt.Printf("Successfully deleted segment '%s' from environment '%s'\n", id, effectiveEnv)
		}
		return nil
	},
}

func confirm(question string) (bool, error) {
	fmt.Printf("%s (y/N): ", question)
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Skip confirmation prompt")
}
