/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	modbus "github.com/allbin/go-modbus"
	"github.com/allbin/go-modbus/internal/tui/models"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [port...]",
	Short: "Monitor serial ports with automatic reconnection",
	Long: `Watch all serial ports on the system in a live terminal UI.

Ports given as arguments are registered immediately; every other port the
system reports is adopted into monitoring as it appears. The registry's
discovery loop keeps the view current: unplugged ports are dropped,
watched ports that come back are re-registered and reopened.

Key bindings:
  o  open all registered ports
  x  close all registered ports
  c  clear the event log
  q  quit

Example usage:
  modbus watch
  modbus watch /dev/ttyUSB0 /dev/ttyUSB1 --baud 9600
  modbus watch --interval 1s`,
	PreRun: bindDeviceFlags,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")

		registry, err := modbus.NewRegistry(
			modbus.WithDefaultBaudRate(viper.GetInt("baud")),
			modbus.WithDefaultReadTimeout(viper.GetDuration("timeout")),
			modbus.WithScanInterval(interval),
			modbus.WithRegistryLogger(newLogger()),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer registry.CloseAll()

		for _, port := range args {
			registry.AddMonitored(port)
			if err := registry.AddWithDefaults(port); err != nil {
				fmt.Fprintf(os.Stderr, "Error registering %s: %v\n", port, err)
				os.Exit(1)
			}
		}

		p := tea.NewProgram(models.NewWatchModel(registry), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntP("baud", "b", 115200, "Baud rate for ports registered up front")
	watchCmd.Flags().Uint8P("slave", "s", 1, "Slave address (unused, kept for config symmetry)")
	watchCmd.Flags().DurationP("timeout", "t", 200*time.Millisecond, "Read timeout for monitored ports")
	watchCmd.Flags().Duration("interval", 500*time.Millisecond, "Discovery scan interval")
}
