/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	modbus "github.com/allbin/go-modbus"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <port>",
	Short: "Identify the device families on a port",
	Long: `Probe both chip sites of a connected device and report their families.

Each site's family register is read in turn, with a short settle delay
between the two transactions. A site that does not answer, or answers with
an unrecognized value, is reported as unknown.

Example usage:
  modbus probe /dev/ttyUSB0
  modbus probe /dev/ttyUSB0 --slave 2 --baud 9600`,
	Args:   cobra.ExactArgs(1),
	PreRun: bindDeviceFlags,
	Run: func(cmd *cobra.Command, args []string) {
		slave := uint8(viper.GetUint("slave"))
		timeout := viper.GetDuration("timeout")

		ch, err := openTransactionChannel(args[0], cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ch.Cancel()

		chip1, chip2 := modbus.DetectChips(context.Background(), ch, slave, timeout)

		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
		fmt.Printf("%s %s\n", labelStyle.Render("Chip 1:"), renderChip(chip1))
		fmt.Printf("%s %s\n", labelStyle.Render("Chip 2:"), renderChip(chip2))
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Uint8P("slave", "s", 1, "Slave address of the target device")
	probeCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	probeCmd.Flags().DurationP("timeout", "t", 200*time.Millisecond, "Response timeout")
}

func renderChip(kind modbus.ChipKind) string {
	if kind == modbus.ChipUnknown {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("unknown")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true).Render(kind.String())
}
