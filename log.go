// Originally derived from: btcsuite/btcd/log.go
// Copyright (c) 2013-2015 The btcsuite developers

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/inventory"
	"github.com/prodigeni/bitcoin-broadcast/peer"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsytem. A single backend logger is created and all subsystem
// loggers created from it write to the backend. When adding new subsystems,
// add the subsystem logger variable here and to the subsystemLoggers map.
//
// Loggers can not be used for file output before the log rotator has been
// initialized with a log file by calling initLogRotator.
var (
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	bcstLog   = backendLog.Logger("BCST")
	dbLog     = backendLog.Logger("DB")
	invLog    = backendLog.Logger("INVT")
	peerLog   = backendLog.Logger("PEER")
	rpcLog    = backendLog.Logger("RPCS")
	serverLog = backendLog.Logger("SRVR")
)

// Initialize package-global logger variables.
func init() {
	database.UseLogger(dbLog)
	inventory.UseLogger(invLog)
	peer.UseLogger(peerLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"BCST": bcstLog,
	"DB":   dbLog,
	"INVT": invLog,
	"PEER": peerLog,
	"RPCS": rpcLog,
	"SRVR": serverLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	logRotator = r
}

// logClosure is used to provide a closure over expensive logging operations
// so don't have to be performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so that it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// setLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// directionString is a helper function that returns a string that represents
// the direction of a connection (inbound or outbound).
func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

// messageSummary returns a human-readable string which summarizes a message.
// Not all messages have or need a summary. This is used for debug logging.
func messageSummary(command string, payload []byte) string {
	switch wire.ObjectTypeFromCommand(command) {
	case wire.ObjectTypeBlock:
		header, err := wire.NewBlockHeaderFromPayload(payload)
		if err != nil {
			return "truncated"
		}
		return fmt.Sprintf("hash %s, time %s", header.BlockHash(),
			header.Timestamp.UTC().Format("2006-01-02 15:04:05"))

	case wire.ObjectTypeTx:
		n, err := wire.TransactionLength(payload)
		if err != nil {
			return "truncated"
		}
		return fmt.Sprintf("%d bytes", n)

	case wire.ObjectTypeInv:
		count, _, err := wire.DecodeVarInt(payload)
		if err != nil {
			return "truncated"
		}
		if count == 1 {
			return "1 item"
		}
		return fmt.Sprintf("%d items", count)

	case wire.ObjectTypeAddr:
		count, _, err := wire.DecodeVarInt(payload)
		if err != nil {
			return "truncated"
		}
		return fmt.Sprintf("%d addr", count)

	case wire.ObjectTypeVersion:
		agent, err := wire.VersionUserAgent(payload)
		if err != nil {
			return "truncated"
		}
		height, _ := wire.VersionStartHeight(payload)
		return fmt.Sprintf("agent %s, height %d", agent, height)
	}

	// No summary for other messages.
	return ""
}
