package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"classroom-lock/client/internal/config"
)

var (
	// current is the app of this invocation, built in PersistentPreRunE.
	current *app

	validateWait time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "classlock",
	Short: "Lock classroom tablets to a single app through the MDM API.",
	Long: `classlock lets a teacher lock a managed tablet to one approved app and release it again.

Log in once with 'classlock login'; the session is kept in an encrypted keystore under
STATE_DIR and validated against the MDM API whenever the network is reachable.
Start with 'classlock devices' to see the class tablets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if current == nil {
			return nil
		}
		// Give background validation a chance to finish so a rejected token is cleared now.
		ctx, cancel := context.WithTimeout(context.Background(), validateWait)
		current.waitValidated(ctx)
		cancel()
		current.close(context.Background())
		current = nil
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if current != nil {
			current.close(context.Background())
		}
		fmt.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().DurationVar(&validateWait, "validate-wait", 5*time.Second,
		"How long to wait at exit for background session validation")
}
