package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wtask/relay/pkg/semver"
)

type (
	// Configuration - client configuration
	Configuration struct {
		// Address - relay server TCP address
		Address string
		// Retries - number of dial attempts after the first failed one
		Retries uint64
		// RetryInterval - initial delay between dial attempts
		RetryInterval time.Duration
	}
)

var (
	// Config - current configuration of the client
	Config = Configuration{
		Address:       "127.0.0.1:5000",
		Retries:       5,
		RetryInterval: 200 * time.Millisecond,
	}

	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// Version - app version fingerprint
	Version = semver.Binary(semver.V{Minor: 1})
)

func init() {
	out := flag.CommandLine.Output()
	printUsage := func() {
		fmt.Fprintf(out, "Connect to line relay server\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		flag.PrintDefaults()
		fmt.Fprint(out, "\n")
	}
	printError := func(msg string) {
		fmt.Fprintf(out, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, msg)
	}

	help := false
	address := os.Getenv("RELAY_ADDR")
	if address == "" {
		address = Config.Address
	}
	flag.BoolVar(&help, "help", false, "Print usage help")
	flag.StringVar(&Config.Address, "addr", address, "Relay server address, env RELAY_ADDR")
	flag.Uint64Var(&Config.Retries, "retries", Config.Retries, "Dial attempts after the first failed one")
	flag.DurationVar(&Config.RetryInterval, "retry-interval", Config.RetryInterval, "Initial delay between dial attempts")

	flag.Parse()

	if help {
		printUsage()
		os.Exit(0)
	}

	if Config.RetryInterval <= 0 {
		printError("retry-interval value should be positive")
		os.Exit(1)
	}
}
