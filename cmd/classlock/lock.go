package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classroom-lock/client/internal/device/domain"
)

// lockCmd represents the lock command
var lockCmd = &cobra.Command{
	Use:   "lock <udid> <bundle-id>",
	Short: "Lock a tablet to one app",
	Long: `Assigns the tablet's owner and then locks it to the app. If the lock step fails the owner
assignment stays in place.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadCatalog(cmd); err != nil {
			return err
		}
		device, app, err := current.catalog.DeviceApp(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Locking %s to %s...\n", device.Name, app.Title)
		msg, err := current.locks.LockDeviceToApp(cmd.Context(), device, app)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

// unlockCmd represents the unlock command
var unlockCmd = &cobra.Command{
	Use:   "unlock [udid]",
	Short: "Release the app lock",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.requireAuth(); err != nil {
			return err
		}
		var device *domain.Device
		if len(args) == 1 {
			if err := current.catalog.Load(cmd.Context()); err != nil {
				return err
			}
			d, err := current.catalog.Device(args[0])
			if err != nil {
				return err
			}
			device = d
		}
		msg, err := current.locks.Unlock(cmd.Context(), device)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
}
