/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	modbus "github.com/allbin/go-modbus"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all serial ports currently present on the system.

Ports are reported by the OS enumeration; on Linux this covers USB serial
adapters (ttyUSB*), USB CDC/ACM devices (ttyACM*), standard serial ports
(ttyS*) and platform-specific devices.

Example usage:
  modbus list
  modbus list --table`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := modbus.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}

		tableFormat, _ := cmd.Flags().GetBool("table")
		if tableFormat {
			renderPortTable(ports)
			return
		}
		for _, port := range ports {
			fmt.Println(port)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// renderPortTable renders the port list in a styled static table format
func renderPortTable(ports []string) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-20s %-20s", "Port", "Type")))
	for _, port := range ports {
		row := fmt.Sprintf("%-20s %-20s", port, portType(port))
		fmt.Println(cellStyle.Render(row))
	}
}

// portType classifies a port by its device name
func portType(path string) string {
	name := strings.ToLower(path)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	switch {
	case strings.HasPrefix(name, "ttyusb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	default:
		return "Serial Port"
	}
}
