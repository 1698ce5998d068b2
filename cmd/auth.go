package cmd

import (
	"fmt"
	"os"

	"fetchrelay/internal/auth"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize a relay sink",
}

var authDropboxCmd = &cobra.Command{
	Use:   "dropbox",
	Short: "Authenticate with Dropbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.AuthorizeDropbox(cmd.Context(), os.Stdout); err != nil {
			return err
		}

		fmt.Println("Authenticated with Dropbox")
		return nil
	},
}

var authGDriveCmd = &cobra.Command{
	Use:   "gdrive",
	Short: "Authenticate with Google Drive",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.AuthorizeGDrive(cmd.Context(), os.Stdin, os.Stdout); err != nil {
			return err
		}

		fmt.Println("Authenticated with Google Drive")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authDropboxCmd, authGDriveCmd)
	rootCmd.AddCommand(authCmd)
}
