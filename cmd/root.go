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
	"os/signal"
	"strings"
	"syscall"

	"github.com/Iridescent115/qcfwup/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes of the qcfwup binary.
const (
	ExitOK = iota
	ExitUsage
	ExitTransferFailed
	ExitTriggerFailed
	ExitDeviceReportedFailure
	ExitCancelled
)

var (
	cfgFile   = ""
	logLevel  = ""
	logFormat = ""

	// cfg is loaded before any subcommand runs
	cfg = config.Default()
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

var rootCmd = &cobra.Command{
	Use:   "qcfwup",
	Short: "Update the QCX217 GNSS companion firmware of Quectel modules over AT commands",
	Long: `qcfwup pushes a firmware image to the QCX217 location chip of a Quectel
module through its AT command port and optionally triggers the on-device update.

Two command dialects exist: v1 tunnels the transfer through AT+QLOCTEST,
v2 uses the AT$QCLOCGNSS command set.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if len(cfgFile) > 0 {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return withExitCode(ExitUsage, err)
			}
			cfg = loaded
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		return withExitCode(ExitUsage, setupLogging(cfg.Log))
	},
}

func setupLogging(c config.LogConfig) error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	switch strings.ToLower(c.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Format)
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel a running update.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitUsage
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
}
