package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/loadgen"
)

var loadtestProfile string
var loadtestUsers int
var loadtestRequestsPerUser int
var loadtestThinkTime time.Duration
var loadtestDuration time.Duration
var loadtestRequestTimeout time.Duration
var loadtestSeed int64

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "drive an in-process processor under a synthetic load profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = common.Sync(a.logger) }()

		var profile loadgen.Profile
		if err := profile.Parse(loadtestProfile); err != nil {
			return err
		}

		if !a.proc.Start() {
			return fmt.Errorf("videoforge: processor failed to start")
		}
		defer a.proc.Stop(30 * time.Second)

		gen := loadgen.New(a.proc, a.gov)
		cfg := loadgen.Config{
			Profile:        profile,
			Users:          loadtestUsers,
			RequestsPerUser: loadtestRequestsPerUser,
			ThinkTime:      loadtestThinkTime,
			Duration:       loadtestDuration,
			RequestTimeout: loadtestRequestTimeout,
			Seed:           loadtestSeed,
		}

		summary := gen.Run(context.Background(), cfg)
		b, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	loadtestCmd.Flags().StringVar(&loadtestProfile, "profile", "constant_load", "load profile: constant_load|ramp_up|spike|stress|endurance|burst")
	loadtestCmd.Flags().IntVar(&loadtestUsers, "users", 10, "peak number of concurrent virtual users")
	loadtestCmd.Flags().IntVar(&loadtestRequestsPerUser, "requests-per-user", 5, "sequential requests issued by each virtual user")
	loadtestCmd.Flags().DurationVar(&loadtestThinkTime, "think-time", 2*time.Second, "pause between a virtual user's requests")
	loadtestCmd.Flags().DurationVar(&loadtestDuration, "duration", time.Minute, "total run duration")
	loadtestCmd.Flags().DurationVar(&loadtestRequestTimeout, "request-timeout", 2*time.Minute, "per-request polling deadline")
	loadtestCmd.Flags().Int64Var(&loadtestSeed, "seed", 1, "random seed for synthetic request generation")
}
