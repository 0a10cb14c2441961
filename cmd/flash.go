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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Iridescent115/qcfwup/fwup"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	tmpFirmwarePath = ""
	tmpSerialPort   = ""
	tmpVariant      = ""
	tmpTrigger      = ""
	tmpReset        = false
	tmpNoProgress   = false
	tmpBaudRate     = 0
)

// flashJob is the resolved input of one flash run.
type flashJob struct {
	FirmwarePath string
	SerialPort   string
	Variant      fwup.Variant
	Trigger      bool
	BaudRate     int
	Progress     bool
	Options      []fwup.Option
}

// validateFirmwarePath checks the image is a non-empty .bin file.
func validateFirmwarePath(path string) error {
	if len(path) == 0 {
		return errors.New("no firmware file given")
	}
	if !strings.EqualFold(filepath.Ext(path), ".bin") {
		return fmt.Errorf("firmware file %s is not a .bin file", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("firmware file %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("firmware file %s is not a regular file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("firmware file %s is empty", path)
	}
	return nil
}

// defaultTrigger is on for v1 and off for v2, where the trigger is opt-in.
func defaultTrigger(v fwup.Variant) bool {
	return v == fwup.V1
}

func resolveFlashJob(cmd *cobra.Command, args []string) (*flashJob, error) {
	job := &flashJob{
		FirmwarePath: tmpFirmwarePath,
		SerialPort:   cfg.SerialPort,
		BaudRate:     cfg.BaudRate,
		Progress:     !tmpNoProgress,
	}

	if len(args) > 0 {
		job.FirmwarePath = args[0]
	}
	if len(args) > 1 {
		job.SerialPort = args[1]
	}
	if cmd.Flags().Changed("serialPort") {
		job.SerialPort = tmpSerialPort
	}
	if cmd.Flags().Changed("baud") {
		job.BaudRate = tmpBaudRate
	}

	variantName := cfg.Variant
	if cmd.Flags().Changed("variant") {
		variantName = tmpVariant
	}
	v, err := fwup.ParseVariant(variantName)
	if err != nil {
		return nil, err
	}
	job.Variant = v

	job.Trigger = defaultTrigger(v)
	if cfg.Trigger != nil {
		job.Trigger = *cfg.Trigger
	}
	if cmd.Flags().Changed("triggerFWUP") {
		t, err := strconv.ParseBool(tmpTrigger)
		if err != nil {
			return nil, fmt.Errorf("invalid --triggerFWUP value %q (want True or False)", tmpTrigger)
		}
		job.Trigger = t
	}

	reset := cfg.ResetV1
	if cmd.Flags().Changed("reset") {
		reset = tmpReset
	}

	if err := validateFirmwarePath(job.FirmwarePath); err != nil {
		return nil, err
	}

	if len(job.SerialPort) == 0 {
		port, err := fwup.FindQuectelPort()
		if err != nil {
			return nil, fmt.Errorf("no serial port given and auto detection failed: %w", err)
		}
		log.WithField("port", port.String()).Info("using detected Quectel serial port")
		job.SerialPort = port.Name
	}

	job.Options = append(cfg.Options(), fwup.WithV1Reset(reset), fwup.WithLogger(log.StandardLogger()))
	return job, nil
}

// progressPrinter renders progress events on a progress bar.
func progressPrinter(size int64) fwup.ProgressCallback {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Writing"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWriter(os.Stdout),
	)
	return func(p fwup.Progress) {
		switch p.Stage {
		case fwup.StageTransfer:
			bar.Describe(fmt.Sprintf("Writing chunk %d/%d", p.Chunk, p.TotalChunks))
			bar.Set64(p.BytesSent)
		case fwup.StageDone:
			fmt.Println()
		default:
			bar.Describe(p.Stage.String())
		}
	}
}

// FlashFirmware runs one update and prints a summary.
func FlashFirmware(ctx context.Context, job *flashJob) (fwup.Report, error) {
	img, err := fwup.OpenImage(job.FirmwarePath)
	if err != nil {
		return fwup.Report{Result: fwup.TransferFailed}, withExitCode(ExitUsage, err)
	}

	fmt.Printf("Opened firmware blob '%s'\n", job.FirmwarePath)
	fmt.Println(img.String())
	fmt.Printf("Flashing over %s (%s, %d baud), trigger update: %v\n", job.SerialPort, job.Variant, job.BaudRate, job.Trigger)

	opts := job.Options
	if job.Progress {
		opts = append(opts, fwup.WithProgressCallback(progressPrinter(img.Size())))
	}

	updater := fwup.New(fwup.NewSerialTransport(job.SerialPort, job.BaudRate), opts...)
	report, err := updater.Run(ctx, img, job.Variant, job.Trigger)
	printReport(img, report)
	if fwup.IsPortBusy(err) {
		fmt.Printf("Serial port %s is in use by another process (ModemManager?)\n", job.SerialPort)
	}
	if err != nil {
		return report, withExitCode(resultExitCode(report.Result), err)
	}
	return report, nil
}

func printReport(img *fwup.Image, r fwup.Report) {
	fmt.Println("File:     ", img.Name)
	fmt.Printf("Size:      %d bytes\n", img.Size())
	fmt.Printf("CRC16:     %#04x\n", img.CRC())
	fmt.Printf("Chunks:    %d acknowledged\n", r.Transfer.Acked)
	if r.Result != fwup.Success {
		fmt.Println("Stage:    ", r.Stage)
	}
	fmt.Println("Result:   ", r.Result)
	fmt.Println("Elapsed:  ", r.Elapsed.Round(time.Millisecond))
}

func resultExitCode(r fwup.UpdateResult) int {
	switch r {
	case fwup.Success:
		return ExitOK
	case fwup.TransferFailed:
		return ExitTransferFailed
	case fwup.TriggerFailed:
		return ExitTriggerFailed
	case fwup.FwupDeviceReportedFailure:
		return ExitDeviceReportedFailure
	case fwup.Cancelled:
		return ExitCancelled
	}
	return ExitUsage
}

var flashCmd = &cobra.Command{
	Use:   "flash [filePath] [serialPort]",
	Short: "Flash a firmware image to the QCX217 companion chip",
	Long: `Flash a firmware image to the QCX217 companion chip.

The image has to be a raw .bin file. It is pushed in 1024 byte chunks, each of
which has to be acknowledged by the module before the next one is sent.

With --variant v2 (default) the module is reset, the FOTA region cleared and
the image metadata written before the transfer. The on-device update is only
triggered with --triggerFWUP True. With --variant v1 the update is always
triggered unless --triggerFWUP False is given.

If no serial port is given, the single Quectel USB serial port found on the
host is used.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := resolveFlashJob(cmd, args)
		if err != nil {
			return withExitCode(ExitUsage, err)
		}
		_, err = FlashFirmware(cmd.Context(), job)
		return err
	},
}

func init() {
	rootCmd.AddCommand(flashCmd)
	addFlashFlags(flashCmd)
}

func addFlashFlags(c *cobra.Command) {
	c.Flags().StringVarP(&tmpFirmwarePath, "filePath", "f", "", "path to the firmware .bin file")
	c.Flags().StringVarP(&tmpSerialPort, "serialPort", "p", "", "AT command serial port (e.g. /dev/ttyUSB2 or COM5)")
	c.Flags().StringVar(&tmpVariant, "variant", "v2", "AT command dialect, v1 (AT+QLOCTEST) or v2 (AT$QCLOCGNSS)")
	c.Flags().StringVar(&tmpTrigger, "triggerFWUP", "", "trigger the on-device update after the transfer (True/False, default False for v2 and True for v1)")
	c.Flags().BoolVar(&tmpReset, "reset", false, "reset the companion chip before a v1 transfer")
	c.Flags().BoolVar(&tmpNoProgress, "no-progress", false, "do not show a progress bar")
	c.Flags().IntVar(&tmpBaudRate, "baud", fwup.DefaultBaudRate, "serial baud rate")
}
