package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage this device's sync identity",
}

var deviceInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create (or show) this device's identity and shared secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("device_id: %s\n", a.device)
		fmt.Printf("data_dir:  %s\n", cfg.DataDir)
		return nil
	},
}

func init() {
	deviceCmd.AddCommand(deviceInitCmd)
	rootCmd.AddCommand(deviceCmd)
}
