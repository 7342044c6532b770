package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"classroom-lock/client/internal/device/domain"
)

var (
	resetCounts bool
	topN        int
)

// countsCmd represents the counts command
var countsCmd = &cobra.Command{
	Use:   "counts [udid]",
	Short: "Show how often apps were chosen for a lock",
	Long: `Without arguments prints the total number of locks recorded on this machine. With a tablet
UDID prints that tablet's most chosen apps; --reset clears the tablet's counts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			fmt.Fprintf(out, "%d locks recorded.\n", current.selection.TotalCount())
			return nil
		}
		udid := args[0]
		if resetCounts {
			if err := current.selection.ResetCounts(cmd.Context(), udid); err != nil {
				return err
			}
			fmt.Fprintf(out, "Counts for %s reset.\n", udid)
			return nil
		}

		titles := map[string]string{}
		if current.auth.IsAuthenticated() {
			if err := current.catalog.Load(cmd.Context()); err == nil {
				for _, a := range current.catalog.Apps() {
					titles[a.ID.String()] = a.Title
				}
			}
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "APP\tLOCKS\tALL TABLETS")
		for _, ac := range current.selection.TopApps(udid, topN) {
			name := titles[ac.AppID.String()]
			if name == "" {
				name = ac.AppID.String()
			}
			fmt.Fprintf(w, "%s\t%d\t%d\n", name, ac.Count, current.selection.AppTotal(ac.AppID))
		}
		fmt.Fprintf(w, "TOTAL\t%d\t\n", current.selection.DeviceTotal(udid))
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(countsCmd)
	countsCmd.Flags().BoolVar(&resetCounts, "reset", false, "Reset the tablet's counts")
	countsCmd.Flags().IntVar(&topN, "top", 0, "Show only the N most chosen apps")
}

// resolveApp loads the catalog and resolves args[0]/args[1] to a device app.
func resolveApp(cmd *cobra.Command, args []string) (*domain.Device, *domain.App, error) {
	if err := loadCatalog(cmd); err != nil {
		return nil, nil, err
	}
	return current.catalog.DeviceApp(args[0], args[1])
}
