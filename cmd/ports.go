// Copyright © 2019 Marcus Mengs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"

	"github.com/Iridescent115/qcfwup/fwup"
	"github.com/spf13/cobra"
)

var tmpQuectelOnly = false

// PrintPorts lists the serial ports of the host.
func PrintPorts(quectelOnly bool) error {
	ports, err := fwup.ListPorts()
	if err != nil {
		return err
	}

	n := 0
	for _, p := range ports {
		if quectelOnly && !p.Quectel {
			continue
		}
		mark := " "
		if p.Quectel {
			mark = "*"
		}
		fmt.Printf("%s %s\n", mark, p.String())
		n++
	}
	if n == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	fmt.Println()
	fmt.Println("Ports marked with '*' belong to a Quectel module. Only one of them accepts")
	fmt.Println("AT commands; pass it with --serialPort if more than one is listed.")
	return nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports, marking those of Quectel modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return PrintPorts(tmpQuectelOnly)
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVarP(&tmpQuectelOnly, "quectel", "q", false, "only list Quectel ports")
}
