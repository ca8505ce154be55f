package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Show the fields and operators conditions can use",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		fields, err := c.Fields(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load fields: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintFields(os.Stdout, fields, outFmt)
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
