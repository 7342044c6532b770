package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var forceLogout bool

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of your teacher account",
	Long: `Ends the current session. You are asked to confirm; answering no restores the session.
With --force the session is cleared immediately, including the stored copy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		if err := current.requireAuth(); err != nil {
			fmt.Fprintln(out, "You are not currently logged in.")
			return nil
		}
		if forceLogout {
			if err := current.auth.Logout(ctx, false); err != nil {
				return err
			}
			fmt.Fprintln(out, "Logged out.")
			return nil
		}

		if err := current.auth.Logout(ctx, true); err != nil {
			return err
		}
		fmt.Fprint(out, "Log out and forget the saved session? [y/N] ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			if err := current.auth.ConfirmLogout(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Logged out.")
		default:
			if err := current.auth.RestorePreviousAuth(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Logout cancelled; session restored.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&forceLogout, "force", false, "Log out without confirmation and clear the stored session")
}
