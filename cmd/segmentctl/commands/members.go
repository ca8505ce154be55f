package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
)

var membersCmd = &cobra.Command{
	Use:   "members <id>",
	Short: "List the client ids in a segment",
	Long: `Resolve a segment against the current population and print the
matching client ids, one per line.

Examples:
  segmentctl members seg-123
  segmentctl members seg-123 --format json`,
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

		m, err := c.Members(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve members: %w", err)
		}
		if quiet {
			return nil
		}
		if outFmt != cli.FormatTable {
			return cli.PrintValue(os.Stdout, m, outFmt)
		}
		for _, id := range m.Members {
			fmt.Println(id)
		}
		if verbose {
			fmt.Printf("%d of %d client(s)\n", m.Count, m.Total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(membersCmd)
}
