package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var submitPrompt string
var submitDuration int
var submitStyle string
var submitVoice string
var submitQuality string
var submitUser string
var submitPriority string

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "submit a new video generation job",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		body := map[string]any{
			"prompt":       submitPrompt,
			"duration_sec": submitDuration,
			"style":        submitStyle,
			"voice":        submitVoice,
			"quality":      submitQuality,
			"user":         submitUser,
			"priority":     submitPriority,
		}
		var out map[string]string
		if err := c.do("POST", "/v1/sessions", body, &out); err != nil {
			return err
		}
		fmt.Println(out["request_id"])
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitPrompt, "prompt", "", "prompt describing the video to generate (required)")
	submitCmd.Flags().IntVar(&submitDuration, "duration", 60, "target video duration, in seconds")
	submitCmd.Flags().StringVar(&submitStyle, "style", "", "visual style hint")
	submitCmd.Flags().StringVar(&submitVoice, "voice", "", "narration voice hint")
	submitCmd.Flags().StringVar(&submitQuality, "quality", "medium", "quality tier: low|medium|high|ultra")
	submitCmd.Flags().StringVar(&submitUser, "user", "", "submitting user/tenant id")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "queue priority: urgent|high|normal|low")
	_ = submitCmd.MarkFlagRequired("prompt")
}
