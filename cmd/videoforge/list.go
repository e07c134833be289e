package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var listUser string
var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list sessions, optionally filtered by user and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		if listUser != "" {
			q.Set("user", listUser)
		}
		if listStatus != "" {
			q.Set("status", listStatus)
		}
		path := "/v1/sessions"
		if enc := q.Encode(); enc != "" {
			path += "?" + enc
		}
		var out []map[string]any
		if err := c.do("GET", path, nil, &out); err != nil {
			return err
		}
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listUser, "user", "", "filter by submitting user/tenant id")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status: queued|processing|completed|failed|cancelled")
}
