// Package main is the videoforge CLI: a thin cobra front end over the
// core packages, mirroring the storage engine's root-command-plus-global-
// state idiom but scoped down to the handful of flags this service needs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var storePath string
var listenAddr string
var logProd bool

var rootCmd = &cobra.Command{
	Use:     "videoforge",
	Short:   "videoforge is a multi-tenant video generation job execution service",
	Long:    "videoforge runs a bounded worker pool that drives short video generation jobs through a fixed research/script/asset/audio/assembly pipeline, under resource governance and per-service rate limiting.",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "directory holding session snapshot files (overrides VIDEOFORGE_STORE_PATH)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen-addr", "", "control-plane HTTP listen address (overrides VIDEOFORGE_LISTEN_ADDR)")
	rootCmd.PersistentFlags().BoolVar(&logProd, "log-json", false, "emit JSON production logs instead of console-formatted development logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(loadtestCmd)
	rootCmd.AddCommand(logCmd)
}

// Execute runs the root command. main.main is its sole caller.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
