package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"classroom-lock/client/internal/device/domain"
)

var showHidden bool

// appsCmd represents the apps command
var appsCmd = &cobra.Command{
	Use:   "apps <udid>",
	Short: "List the apps of a tablet",
	Long:  `Lists the apps installed on the tablet with how often each was chosen for a lock. Hidden apps are listed only with --all.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadCatalog(cmd); err != nil {
			return err
		}
		udid := args[0]
		var (
			apps []domain.App
			err  error
		)
		if showHidden {
			if err = current.catalog.PurgeOrphaned(cmd.Context(), udid); err != nil {
				return err
			}
			apps, err = current.catalog.DeviceApps(udid)
		} else {
			apps, err = current.catalog.VisibleApps(cmd.Context(), udid)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BUNDLE ID\tTITLE\tLOCKS\tHIDDEN")
		for _, a := range apps {
			bundle := a.BundleID
			if bundle == "" {
				bundle = "-"
			}
			hidden := ""
			if current.visibility.IsHidden(udid, a.ID) {
				hidden = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", bundle, a.Title, current.selection.GetCount(udid, a.ID), hidden)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(appsCmd)
	appsCmd.Flags().BoolVar(&showHidden, "all", false, "Include hidden apps")
}
