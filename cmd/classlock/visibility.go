package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// hideCmd represents the hide command
var hideCmd = &cobra.Command{
	Use:   "hide <udid> <bundle-id>",
	Short: "Hide an app from a tablet's app list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, app, err := resolveApp(cmd, args)
		if err != nil {
			return err
		}
		if err := current.visibility.Hide(cmd.Context(), args[0], app.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s hidden.\n", app.Title)
		return nil
	},
}

var showAll bool

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <udid> [bundle-id]",
	Short: "Show a hidden app again",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showAll {
			if err := current.visibility.ClearAll(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All apps visible.")
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("bundle id required (or use --all)")
		}
		_, app, err := resolveApp(cmd, args)
		if err != nil {
			return err
		}
		if err := current.visibility.Show(cmd.Context(), args[0], app.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s visible.\n", app.Title)
		return nil
	},
}

// toggleCmd represents the toggle command
var toggleCmd = &cobra.Command{
	Use:   "toggle <udid> <bundle-id>",
	Short: "Toggle whether an app is hidden",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, app, err := resolveApp(cmd, args)
		if err != nil {
			return err
		}
		hidden, err := current.visibility.Toggle(cmd.Context(), args[0], app.ID)
		if err != nil {
			return err
		}
		state := "visible"
		if hidden {
			state = "hidden"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s.\n", app.Title, state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(toggleCmd)
	showCmd.Flags().BoolVar(&showAll, "all", false, "Unhide every app of the tablet")
}
