package cmd

import (
	"fmt"
	"net/http"

	"fetchrelay/internal/model"
	"fetchrelay/internal/repository"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Worker  model.WorkerSnapshot `json:"worker"`
			History repository.Stats     `json:"history"`
		}
		if err := call(http.MethodGet, "/status", nil, &result); err != nil {
			return err
		}

		var space struct {
			Free string `json:"free"`
		}
		_ = call(http.MethodGet, "/system/free-space", nil, &space)

		w := result.Worker
		active := w.ActiveJob
		if active == "" {
			active = "-"
		}

		fmt.Printf("sink:        %s (ready: %t)\n", w.SinkName, w.SinkReady)
		fmt.Printf("active:      %s\n", active)
		fmt.Printf("pending:     %d\n", w.Pending)
		fmt.Printf("jobs:        %d\n", w.Jobs)
		fmt.Printf("subscribers: %d\n", w.Subscribers)
		if space.Free != "" {
			fmt.Printf("free space:  %s\n", space.Free)
		}

		h := result.History
		fmt.Printf("history:     %d done, %d failed, %d cancelled, %s transferred\n",
			h.Done, h.Failed, h.Cancelled, humanize.IBytes(uint64(h.Bytes)))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
