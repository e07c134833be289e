package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "show a submitted job's current session state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		var sess map[string]any
		if err := c.do("GET", "/v1/sessions/"+args[0], nil, &sess); err != nil {
			return err
		}
		b, _ := json.MarshalIndent(sess, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}
