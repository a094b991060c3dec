/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	modbus "github.com/allbin/go-modbus"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <port>",
	Short: "Read device registers",
	Long: `Read one or more registers from a Modbus RTU device.

The register class determines the function code used on the wire:
- coil (0x01)
- discrete (0x02)
- holding (0x03)
- input (0x04)

Example usage:
  modbus read /dev/ttyUSB0 --address 0x4000
  modbus read /dev/ttyUSB0 --type input --address 16 --count 4
  modbus read /dev/ttyUSB0 --slave 2 --baud 9600`,
	Args:   cobra.ExactArgs(1),
	PreRun: bindDeviceFlags,
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := parseRegisterType(mustString(cmd, "type"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		slave := uint8(viper.GetUint("slave"))
		address := mustUint16(cmd, "address")
		count := mustUint16(cmd, "count")
		timeout := viper.GetDuration("timeout")

		ch, err := openTransactionChannel(args[0], cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ch.Cancel()

		values, err := modbus.ReadRegister(context.Background(), ch, slave, rt, address, count, timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
		for i, v := range values {
			addr := address + uint16(i)
			fmt.Printf("%s %d (0x%04X)\n",
				labelStyle.Render(fmt.Sprintf("%s 0x%04X:", rt, addr)), v, v)
		}
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().Uint8P("slave", "s", 1, "Slave address of the target device")
	readCmd.Flags().StringP("type", "r", "holding", "Register class: coil, discrete, holding, input")
	readCmd.Flags().Uint16P("address", "a", 0, "Start register address")
	readCmd.Flags().Uint16P("count", "c", 1, "Number of registers to read")
	readCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	readCmd.Flags().DurationP("timeout", "t", 200*time.Millisecond, "Response timeout")
}

// bindDeviceFlags lets config file and MODBUS_* environment variables
// provide defaults for the per-device flags. Bound as PreRun so each
// command's own flags win while it executes.
func bindDeviceFlags(cmd *cobra.Command, args []string) {
	viper.BindPFlag("slave", cmd.Flags().Lookup("slave"))
	viper.BindPFlag("baud", cmd.Flags().Lookup("baud"))
	viper.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
}

// openTransactionChannel opens a transaction-only channel for path using
// the command's connection flags
func openTransactionChannel(path string, cmd *cobra.Command) (*modbus.Channel, error) {
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	fmt.Printf("%s Opening %s...\n", infoStyle.Render("⚡"), path)

	ch, err := modbus.NewChannel(context.Background(), path,
		modbus.WithBaudRate(viper.GetInt("baud")),
		modbus.WithAutoReceive(false),
		modbus.WithLogger(newLogger()),
	)
	if err != nil {
		return nil, err
	}
	if err := ch.Open(context.Background()); err != nil {
		ch.Cancel()
		return nil, err
	}
	return ch, nil
}

func parseRegisterType(name string) (modbus.RegisterType, error) {
	switch strings.ToLower(name) {
	case "coil":
		return modbus.Coil, nil
	case "discrete":
		return modbus.DiscreteInput, nil
	case "holding":
		return modbus.HoldingRegister, nil
	case "input":
		return modbus.InputRegister, nil
	default:
		return 0, fmt.Errorf("unknown register type %q (want coil, discrete, holding or input)", name)
	}
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustUint16(cmd *cobra.Command, name string) uint16 {
	v, _ := cmd.Flags().GetUint16(name)
	return v
}
