package cmd

import (
	"fmt"
	"net/http"

	"fetchrelay/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View finished jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var histories []model.History
		if err := call(http.MethodGet, fmt.Sprintf("/history?n=%d", historyN), nil, &histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			switch h.State {
			case model.StateError:
				status = "✗"
			case model.StateCancelled:
				status = "-"
			}

			fmt.Printf("%s [%s] %-8s %-9s %s\n",
				status,
				h.FinishedAt.Format("2006-01-02 15:04:05"),
				h.Kind,
				humanize.IBytes(uint64(h.Size)),
				h.SourceRef,
			)
			if h.ErrMsg != "" && h.State == model.StateError {
				fmt.Printf("  %s\n", h.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	rootCmd.AddCommand(historyCmd)
}
