package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "cancel an actively-processing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := c.do("POST", "/v1/sessions/"+args[0]+"/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Println("cancelled")
		return nil
	},
}
