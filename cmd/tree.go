package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"fetchrelay/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the public directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Root      []*model.Node `json:"root"`
			Truncated bool         `json:"truncated"`
		}
		if err := call(http.MethodGet, "/dl/tree", nil, &result); err != nil {
			return err
		}

		if len(result.Root) == 0 {
			fmt.Println("public directory is empty")
			return nil
		}

		printNodes(result.Root, 0)
		if result.Truncated {
			fmt.Println("... (truncated)")
		}
		return nil
	},
}

func printNodes(nodes []*model.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.IsDir {
			fmt.Printf("%s%s/\n", indent, n.Name)
			printNodes(n.Children, depth+1)
			continue
		}

		size := "-"
		if n.Size != nil {
			size = humanize.IBytes(uint64(*n.Size))
		}
		fmt.Printf("%s%-40s %s\n", indent, n.Name, size)
	}
}

var treeRelayCmd = &cobra.Command{
	Use:   "relay [path]",
	Short: "Relay a file or directory from the public directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Total int `json:"total"`
		}
		if err := call(http.MethodPost, "/dl/upload", map[string]any{"path": args[0]}, &result); err != nil {
			return err
		}

		fmt.Printf("%d relay jobs queued\n", result.Total)
		return nil
	},
}

var treeDeleteCmd = &cobra.Command{
	Use:   "delete [path]",
	Short: "Delete a file or directory from the public directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/dl/any-delete", map[string]any{"path": args[0]}, nil); err != nil {
			return err
		}

		fmt.Printf("%s deleted\n", args[0])
		return nil
	},
}

var treeRenameCmd = &cobra.Command{
	Use:   "rename [old] [new]",
	Short: "Rename an entry in the public directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"oldPath": args[0], "newPath": args[1]}
		if err := call(http.MethodPost, "/dl/rename", body, nil); err != nil {
			return err
		}

		fmt.Printf("%s renamed to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	treeCmd.AddCommand(treeRelayCmd, treeDeleteCmd, treeRenameCmd)
	rootCmd.AddCommand(treeCmd)
}
