/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	modbus "github.com/allbin/go-modbus"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <port> <value>",
	Short: "Write a single device register",
	Long: `Write a value to a single register of a Modbus RTU device.

Only coils (0x05) and holding registers (0x06) are writable. For coils any
nonzero value switches the output on.

Example usage:
  modbus write /dev/ttyUSB0 256 --address 0x0100
  modbus write /dev/ttyUSB0 1 --type coil --address 3
  modbus write /dev/ttyUSB0 0xFF --slave 2 --baud 9600`,
	Args:   cobra.ExactArgs(2),
	PreRun: bindDeviceFlags,
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := parseRegisterType(mustString(cmd, "type"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		value, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid value %q: %v\n", args[1], err)
			os.Exit(1)
		}

		slave := uint8(viper.GetUint("slave"))
		address := mustUint16(cmd, "address")
		timeout := viper.GetDuration("timeout")

		ch, err := openTransactionChannel(args[0], cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ch.Cancel()

		err = modbus.WriteRegister(context.Background(), ch, slave, rt, address, uint16(value), timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true)
		fmt.Printf("%s Wrote %d (0x%04X) to %s 0x%04X\n",
			successStyle.Render("✓"), value, value, rt, address)
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().Uint8P("slave", "s", 1, "Slave address of the target device")
	writeCmd.Flags().StringP("type", "r", "holding", "Register class: coil, holding")
	writeCmd.Flags().Uint16P("address", "a", 0, "Register address")
	writeCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	writeCmd.Flags().DurationP("timeout", "t", 200*time.Millisecond, "Response timeout")
}
