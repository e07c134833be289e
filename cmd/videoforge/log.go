package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lordpython/videoforge/session"
)

var logOutputFile string

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "write a session history summary, one line per session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if logOutputFile != "" {
			f, err := os.Create(logOutputFile)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		sessions := a.store.List(session.ListFilters{})
		for _, s := range sessions {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.Stage, s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		if logOutputFile != "" {
			fmt.Printf("wrote %d session records to %s\n", len(sessions), logOutputFile)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVarP(&logOutputFile, "output", "o", "", "write the session history summary to this file instead of stdout")
}
