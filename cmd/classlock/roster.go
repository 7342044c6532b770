package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// classesCmd represents the classes command
var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List the class roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.requireAuth(); err != nil {
			return err
		}
		classes, err := current.client.FetchClasses(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tNAME\tSTUDENTS\tTEACHERS")
		for _, c := range classes {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", c.UUID, c.Name, len(c.Students), len(c.Teachers))
		}
		return w.Flush()
	},
}

// groupsCmd represents the groups command
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List your teacher groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.requireAuth(); err != nil {
			return err
		}
		groups, err := current.client.FetchTeacherGroups(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
		for _, g := range groups {
			fmt.Fprintf(w, "%d\t%s\t%d\n", g.ID, g.Name, g.Members)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(groupsCmd)
}
