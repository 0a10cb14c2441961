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

// PrintQuectelUSB lists the attached Quectel modules with their interfaces.
func PrintQuectelUSB() error {
	devs, err := fwup.ListQuectelUSB()
	if err != nil {
		return err
	}
	if len(devs) == 0 {
		fmt.Println("no Quectel module found on USB")
		return nil
	}

	for _, d := range devs {
		fmt.Println(d.String())
		for _, iface := range d.Interfaces {
			fmt.Println("    ", iface.String())
		}
	}
	return nil
}

var usbCmd = &cobra.Command{
	Use:   "usb",
	Short: "List Quectel modules attached over USB",
	Long: `List Quectel modules attached over USB with their descriptors and
interfaces. Reading the string descriptors may need root privileges.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return PrintQuectelUSB()
	},
}

func init() {
	rootCmd.AddCommand(usbCmd)
}
