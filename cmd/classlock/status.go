package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"classroom-lock/client/internal/identity/domain"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login and network status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg := current.cfg
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ValidationTimeout()+cfg.HTTPTimeout())
		defer cancel()
		waitWithProgress(ctx, out)

		st := current.auth.Status()
		fmt.Fprintf(out, "Session:   %s\n", describeState(st))
		if st.Session != nil {
			u := st.Session.User
			fmt.Fprintf(out, "User:      %s (%s, id %d, company %d)\n", u.DisplayName, u.Username, u.ID, u.CompanyID)
		}
		fmt.Fprintf(out, "Network:   %s\n", connectedLabel(current.monitor.IsConnected()))
		fmt.Fprintf(out, "Locks:     %d recorded\n", current.selection.TotalCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func describeState(st domain.Status) string {
	label := "logged out"
	switch st.State {
	case domain.StateAuthenticatedVerified:
		label = "logged in (verified)"
	case domain.StateAuthenticatedUnverified:
		label = "logged in (not yet verified)"
	case domain.StateInvalid:
		label = "logged out (session rejected by server)"
	}
	if st.IsValidating {
		label += ", validating"
	}
	return label
}

func connectedLabel(connected bool) string {
	if connected {
		return "reachable"
	}
	return "unreachable"
}

// waitWithProgress waits for background validation and reports the shared reachability
// attempt while the client is waiting for the network.
func waitWithProgress(ctx context.Context, out io.Writer) {
	if current.validated == nil {
		return
	}
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	last := 0
	for {
		select {
		case <-current.validated:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			if !current.monitor.Waiting() {
				continue
			}
			if n := current.monitor.Attempt(); n != last {
				fmt.Fprintf(out, "Waiting for the MDM API (attempt %d)...\n", n)
				last = n
			}
		}
	}
}
