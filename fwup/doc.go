// Package fwup updates the firmware of the QCX217 GNSS companion chip found in
// Quectel modules by pushing the image over the module's AT command port.
//
// # Overview
//
// An update run walks a fixed stage plan:
//   - V2: reset, clear the FOTA region, write the image metadata, transfer,
//     then optionally query the version, trigger the update and query the
//     version again
//   - V1: optionally reset, transfer, then optionally init the location
//     engine, query the version, trigger the update and query the version
//     again
//
// The transfer sends the image in 1024 byte chunks, each rendered as 0xHH
// tokens joined by underscores. Every chunk has to be acknowledged before the
// next one is sent; anything else aborts the whole transfer.
//
// # Basic Usage
//
//	img, err := fwup.OpenImage("QCX217_FW.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	u := fwup.New(fwup.NewSerialTransport("/dev/ttyUSB2", fwup.DefaultBaudRate))
//	report, err := u.Run(ctx, img, fwup.V2, true)
//	if err != nil {
//	    log.Fatalf("update %s: %v", report.Result, err)
//	}
//
// # Transport
//
// Every command and every response wait opens its own serial session and
// closes it again. Open, write and read failures are retried up to five times
// with a two second pause; protocol answers such as a Nack are never retried.
package fwup
