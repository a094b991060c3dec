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

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <hex> <port>",
	Short: "Send a raw frame to a serial port",
	Long: `Send raw bytes to a serial port for low-level protocol debugging.

Data is given as a hex string ("01 03 40 00 00 01"); spaces and 0x prefixes
are ignored. With --crc the Modbus CRC-16 is computed and appended, so only
the frame body needs to be supplied. With --await the command performs a
full transaction and prints the device's response.

Example usage:
  modbus send "01 03 40 00 00 01 90 1B" /dev/ttyUSB0
  modbus send "01 03 40 00 00 01" /dev/ttyUSB0 --crc --await
  modbus send "deadbeef" /dev/ttyUSB0 --baud 9600`,
	Args:   cobra.ExactArgs(2),
	PreRun: bindDeviceFlags,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := parseHexString(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid hex data: %v\n", err)
			os.Exit(1)
		}

		appendCRC, _ := cmd.Flags().GetBool("crc")
		if appendCRC && len(data) >= 2 {
			frame := modbus.NewFrame(data[0], data[1], data[2:])
			data = frame.Bytes()
		}

		await, _ := cmd.Flags().GetBool("await")
		timeout := viper.GetDuration("timeout")

		ch, err := openTransactionChannel(args[1], cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ch.Cancel()

		infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
		successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true)

		fmt.Printf("%s Sending % X\n", infoStyle.Render("📤"), data)

		if !await {
			if err := ch.Send(data); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Sent %d bytes\n", successStyle.Render("✓"), len(data))
			return
		}

		response, err := ch.Transaction(context.Background(), data, timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Response: % X\n", successStyle.Render("✓"), response)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	sendCmd.Flags().Uint8P("slave", "s", 1, "Slave address (unused, kept for config symmetry)")
	sendCmd.Flags().DurationP("timeout", "t", 200*time.Millisecond, "Response timeout")
	sendCmd.Flags().Bool("crc", false, "Append the Modbus CRC-16 to the frame body")
	sendCmd.Flags().Bool("await", false, "Wait for and print the device's response")
}

// parseHexString converts a hex string into bytes, tolerating spaces and
// 0x prefixes
func parseHexString(hexStr string) ([]byte, error) {
	hexStr = strings.ReplaceAll(hexStr, " ", "")
	hexStr = strings.ReplaceAll(hexStr, "0x", "")
	hexStr = strings.ReplaceAll(hexStr, "0X", "")

	if len(hexStr)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}

	result := make([]byte, 0, len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		var b byte
		if _, err := fmt.Sscanf(hexStr[i:i+2], "%x", &b); err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %v", hexStr[i:i+2], err)
		}
		result = append(result, b)
	}
	return result, nil
}
