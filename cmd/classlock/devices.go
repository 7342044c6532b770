package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the class tablets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadCatalog(cmd); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UDID\tNAME\tOWNER\tAPPS\tLOCKS")
		for _, d := range current.catalog.Devices() {
			owner := d.OwnerID
			if owner == "" {
				owner = "(none)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", d.UDID, d.Name, owner, len(d.AppIDs), current.selection.DeviceTotal(d.UDID))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

// loadCatalog requires a session and refreshes the device listing.
func loadCatalog(cmd *cobra.Command) error {
	if err := current.requireAuth(); err != nil {
		return err
	}
	return current.catalog.Load(cmd.Context())
}
