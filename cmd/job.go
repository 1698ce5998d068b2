package cmd

import (
	"fmt"
	"net/http"
	"time"

	"fetchrelay/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	jobSave bool
	jobName string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var jobs []model.Job
		if err := call(http.MethodGet, "/jobs", nil, &jobs); err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("no jobs")
			return nil
		}

		fmt.Printf("%-42s %-8s %-11s %-4s %-14s %s\n", "ID", "TYPE", "STATUS", "%", "CREATED", "SOURCE")
		for _, j := range jobs {
			created := humanize.Time(time.UnixMilli(j.CreatedAt))
			fmt.Printf("%-42s %-8s %-11s %-4d %-14s %s\n", j.ID, j.Kind, j.State, j.Percent, created, j.SourceRef)
			if j.Message != "" {
				fmt.Printf("%42s %s\n", "", j.Message)
			}
		}

		return nil
	},
}

var jobAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Submit a URL to fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			JobID string `json:"jobId"`
			Type  string `json:"type"`
		}

		body := map[string]any{
			"fileUrl":  args[0],
			"saveToDl": jobSave,
			"fileName": jobName,
		}
		if err := call(http.MethodPost, "/upload", body, &result); err != nil {
			return err
		}

		fmt.Printf("job added: id=%s type=%s\n", result.JobID, result.Type)
		return nil
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/jobs/"+args[0]+"/cancel", map[string]any{}, nil); err != nil {
			return err
		}

		fmt.Printf("job %s cancelled\n", args[0])
		return nil
	},
}

var jobCancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every queued and running job",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Count int `json:"count"`
		}
		if err := call(http.MethodPost, "/jobs/cancel-all", map[string]any{}, &result); err != nil {
			return err
		}

		fmt.Printf("%d jobs cancelled\n", result.Count)
		return nil
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/jobs/"+args[0], nil, nil); err != nil {
			return err
		}

		fmt.Printf("job %s removed\n", args[0])
		return nil
	},
}

func init() {
	jobAddCmd.Flags().BoolVar(&jobSave, "save", false, "persist to the public directory instead of relaying")
	jobAddCmd.Flags().StringVar(&jobName, "name", "", "file name for the artifact")
	jobCmd.AddCommand(jobListCmd, jobAddCmd, jobCancelCmd, jobCancelAllCmd, jobRemoveCmd)
	rootCmd.AddCommand(jobCmd)
}
