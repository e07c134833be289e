package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lordpython/videoforge/common"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "run one maintenance sweep pass against the session store and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = common.Sync(a.logger) }()

		result := a.sweeper.RunOnce()

		b, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}
