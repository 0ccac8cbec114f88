// Originally derived from: btcsuite/btcd/btcd.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/prodigeni/bitcoin-broadcast/database"
)

const (
	// objectDbName is the name of the inventory file in the data
	// directory for persistent drivers.
	objectDbName = "objects.db"
)

var (
	cfg             *config
	shutdownChannel = make(chan struct{})
)

// setupDB opens the inventory database of the configured type. Persistent
// databases live in dataDir and are created on first use.
func setupDB(dbType, dataDir string) (database.Db, error) {
	if dbType == "memdb" {
		return database.CreateDB(dbType)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dataDir, objectDbName)

	bcstLog.Infof("Loading inventory database %s", dbPath)
	return database.OpenDB(dbType, dbPath)
}

// broadcastMain is the real main function. It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func broadcastMain() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Show version at startup.
	bcstLog.Infof("Version %s", version())

	db, err := setupDB(cfg.DbType, cfg.DataDir)
	if err != nil {
		bcstLog.Errorf("Unable to setup database: %v", err)
		return err
	}
	defer db.Close()

	// Create server and start it.
	server, err := newServer(cfg.Listeners, db, defaultListen)
	if err != nil {
		bcstLog.Errorf("Unable to start server on %v: %v", cfg.Listeners, err)
		return err
	}
	bcstLog.Infof("Inventory holds %d objects", server.inventory.Count())

	// Stop the server on interrupt.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		bcstLog.Info("Received SIGINT (Ctrl+C). Shutting down...")
		server.Stop()
	}()

	server.Start()

	// Monitor for graceful server shutdown and signal the main goroutine
	// when done. This is done in a separate goroutine rather than waiting
	// directly so the main goroutine can be signaled for shutdown by either
	// a graceful shutdown or from the main interrupt handler. This is
	// necessary since the main goroutine must be kept running long enough
	// for the interrupt handler goroutine to finish.
	go func() {
		server.WaitForShutdown()
		bcstLog.Info("Server shutdown complete")
		shutdownChannel <- struct{}{}
	}()

	// Wait for shutdown signal from either a graceful server stop or from
	// the interrupt handler.
	<-shutdownChannel
	bcstLog.Info("Shutdown complete")
	return nil
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit()
	if err := broadcastMain(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
