// Originally derived from: btcsuite/btcd/config.go
// Copyright (c) 2013-2015 The btcsuite developers

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/go-socks/socks"
	flags "github.com/jessevdk/go-flags"
	"github.com/prodigeni/bitcoin-broadcast/database"
	_ "github.com/prodigeni/bitcoin-broadcast/database/bdb"
	_ "github.com/prodigeni/bitcoin-broadcast/database/memdb"
	"github.com/prodigeni/bitcoin-broadcast/peer"
)

const (
	defaultConfigFilename = "broadcast.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "broadcast.log"
	defaultMaxPeers       = 8
	defaultMaxRPCClients  = 10
	defaultDbType         = "memdb"
	defaultPort           = "8333"
	defaultRPCPort        = "8334"
)

var (
	broadcastHomeDir   = btcutil.AppDataDir("bitcoin-broadcast", false)
	defaultConfigFile  = filepath.Join(broadcastHomeDir, defaultConfigFilename)
	defaultDataDir     = filepath.Join(broadcastHomeDir, defaultDataDirname)
	knownDbTypes       = database.SupportedDBs()
	defaultRPCKeyFile  = filepath.Join(broadcastHomeDir, "rpc.key")
	defaultRPCCertFile = filepath.Join(broadcastHomeDir, "rpc.cert")
	defaultLogDir      = filepath.Join(broadcastHomeDir, defaultLogDirname)
)

// config defines the configuration options for bitcoin-broadcast.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion   bool     `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile    string   `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string   `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string   `long:"logdir" description:"Directory to log output."`
	ConnectPeers  []string `long:"connect" description:"Connect to the specified peers at startup and reconnect when they drop"`
	DisableListen bool     `long:"nolisten" description:"Disable listening for incoming connections -- NOTE: Listening is automatically disabled if the --connect or --proxy options are used without also specifying listen interfaces via --listen"`
	Listeners     []string `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 8333)"`
	MaxPeers      int      `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	MaxUp         int64    `long:"maxup" description:"Max bytes per second sent to a single peer, 0 for no limit"`
	MaxDown       int64    `long:"maxdown" description:"Max bytes per second received from a single peer, 0 for no limit"`
	BlockTxs      bool     `long:"blocktxs" description:"Also store and relay the transactions of every new block as separate tx objects"`
	RPCUser       string   `short:"u" long:"rpcuser" description:"Username for RPC connections"`
	RPCPass       string   `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections"`
	RPCLimitUser  string   `long:"rpclimituser" description:"Username for limited RPC connections"`
	RPCLimitPass  string   `long:"rpclimitpass" default-mask:"-" description:"Password for limited RPC connections"`
	RPCListeners  []string `long:"rpclisten" description:"Add an interface/port to listen for RPC connections (default port: 8334)"`
	RPCCert       string   `long:"rpccert" description:"File containing the certificate file"`
	RPCKey        string   `long:"rpckey" description:"File containing the certificate key"`
	RPCMaxClients int      `long:"rpcmaxclients" description:"Max number of RPC clients"`
	DisableRPC    bool     `long:"norpc" description:"Disable built-in RPC server -- NOTE: The RPC server is disabled by default if no rpcuser/rpcpass or rpclimituser/rpclimitpass is specified"`
	DisableTLS    bool     `long:"notls" description:"Disable TLS for the RPC server -- NOTE: This is only allowed if the RPC server is bound to localhost"`
	Proxy         string   `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser     string   `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass     string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	DbType        string   `long:"dbtype" description:"Database backend to use for the inventory {memdb, boltdb}"`
	DebugLevel    string   `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	dial          func(string, string) (net.Conn, error)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(broadcastHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels applies a --debuglevel value. It is either a single
// level for every subsystem or a comma separated list of subsystem=level
// pairs.
func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.ContainsAny(debugLevel, ",=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the debug level [%v] is invalid", debugLevel)
		}
		setLogLevels(debugLevel)
		return nil
	}

	// Validate every pair before changing any level.
	levels := make(map[string]string)
	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the debug level contains an invalid "+
				"subsystem/level pair [%v]", pair)
		}
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the subsystem [%v] is invalid -- "+
				"supported subsystems %v", subsysID, supportedSubsystems())
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the debug level [%v] is invalid", logLevel)
		}
		levels[subsysID] = logLevel
	}

	for subsysID, logLevel := range levels {
		setLogLevel(subsysID, logLevel)
	}
	return nil
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}

	return false
}

// removeDuplicateAddresses returns a new slice with all duplicate entries in
// addrs removed.
func removeDuplicateAddresses(addrs []string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, val := range addrs {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	for i, addr := range addrs {
		addrs[i] = normalizeAddress(addr, defaultPort)
	}

	return removeDuplicateAddresses(addrs)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// defaultConfig returns the configuration used before any file or command
// line option is applied.
func defaultConfig() config {
	return config{
		ConfigFile:    defaultConfigFile,
		DebugLevel:    defaultLogLevel,
		MaxPeers:      defaultMaxPeers,
		RPCMaxClients: defaultMaxRPCClients,
		DataDir:       defaultDataDir,
		LogDir:        defaultLogDir,
		DbType:        defaultDbType,
		RPCKey:        defaultRPCKeyFile,
		RPCCert:       defaultRPCCertFile,
	}
}

// loadConfig initializes and parses the config using a config file and the
// command line options in args.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The above results in bitcoin-broadcast functioning properly without any
// config settings while still allowing the user to override settings with
// config files and command line options. Command line options always take
// precedence.
func loadConfig(args []string) (*config, []string, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	if preCfg.ConfigFile != defaultConfigFile || fileExists(preCfg.ConfigFile) {
		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			if _, ok := err.(*os.PathError); !ok {
				fmt.Fprintf(os.Stderr, "Error parsing config "+
					"file: %v\n", err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, nil, err
			}
			configFileError = err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// fail reports an invalid setting together with the usage hint.
	fail := func(format string, args ...interface{}) (*config, []string, error) {
		err := fmt.Errorf("loadConfig: "+format, args...)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	if err := os.MkdirAll(broadcastHomeDir, 0700); err != nil {
		// A dangling symlink usually means an unmounted volume.
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				err = fmt.Errorf("is symlink %s -> %s mounted?", e.Path, link)
			}
		}
		err = fmt.Errorf("loadConfig: failed to create home directory: %v", err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Logging starts at the default level until --debuglevel is applied.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	setLogLevels(defaultLogLevel)
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return fail("%v", err)
	}

	if !validDbType(cfg.DbType) {
		return fail("the database type [%v] is invalid -- supported types %v",
			cfg.DbType, knownDbTypes)
	}

	// Rate limits are bytes per second; zero disables them.
	if cfg.MaxUp < 0 || cfg.MaxDown < 0 {
		return fail("the --maxup and --maxdown options may not be negative")
	}

	// --proxy or --connect without --listen disables listening.
	if (cfg.Proxy != "" || len(cfg.ConnectPeers) > 0) &&
		len(cfg.Listeners) == 0 {
		cfg.DisableListen = true
	}
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{net.JoinHostPort("", defaultPort)}
	}

	// Admin and limited RPC users must be distinguishable by either half
	// of their credentials.
	if cfg.RPCUser == cfg.RPCLimitUser && cfg.RPCUser != "" {
		return fail("--rpcuser and --rpclimituser must not specify the same username")
	}
	if cfg.RPCPass == cfg.RPCLimitPass && cfg.RPCPass != "" {
		return fail("--rpcpass and --rpclimitpass must not specify the same password")
	}

	// The RPC server is disabled if no username or password is provided.
	if (cfg.RPCUser == "" || cfg.RPCPass == "") &&
		(cfg.RPCLimitUser == "" || cfg.RPCLimitPass == "") {
		cfg.DisableRPC = true
	}

	// Default RPC to listen on localhost only.
	if !cfg.DisableRPC && len(cfg.RPCListeners) == 0 {
		addrs, err := net.LookupHost("localhost")
		if err != nil {
			return nil, nil, err
		}
		for _, addr := range addrs {
			cfg.RPCListeners = append(cfg.RPCListeners,
				net.JoinHostPort(addr, defaultRPCPort))
		}
	}

	cfg.Listeners = normalizeAddresses(cfg.Listeners, defaultPort)
	cfg.RPCListeners = normalizeAddresses(cfg.RPCListeners, defaultRPCPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers, defaultPort)

	// TLS may only be disabled when RPC is bound to localhost.
	if !cfg.DisableRPC && cfg.DisableTLS {
		for _, addr := range cfg.RPCListeners {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return fail("RPC listen interface '%s' is invalid: %v", addr, err)
			}
			switch host {
			case "localhost", "127.0.0.1", "::1":
			default:
				return fail("the --notls option may not be used when binding "+
					"RPC to non localhost addresses: %s", addr)
			}
		}
	}

	// Outbound peers dial directly unless a SOCKS5 proxy is configured.
	cfg.dial = net.Dial
	if cfg.Proxy != "" {
		if _, _, err := net.SplitHostPort(cfg.Proxy); err != nil {
			return fail("proxy address '%s' is invalid: %v", cfg.Proxy, err)
		}

		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		cfg.dial = proxy.Dial
		peer.SetDialer(cfg.dial)
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid options.
	// Note this should go directly before the return.
	if configFileError != nil {
		bcstLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
