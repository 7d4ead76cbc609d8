package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/relay/bridge"
	"github.com/wtask/relay/internal/relay/hub"
	"github.com/wtask/relay/internal/relay/line"
	"github.com/wtask/relay/pkg/semver"
)

type (
	// Configuration - server configuration
	Configuration struct {
		// Address - TCP address to listen
		Address string
		// Capacity - number of messages a client may lag behind before losing them
		Capacity int
		// LagPolicy - what to do with lagged client, skip or close
		LagPolicy relay.LagPolicy
		// SelfDelivery - whether client receives its own lines
		SelfDelivery bool
		// ReadTimeout - idle period before client is disconnected, 0 disables it
		ReadTimeout time.Duration
		// WriteTimeout - timeout of single write to client
		WriteTimeout time.Duration
		// MaxLineLength - limit of incoming line in bytes
		MaxLineLength int
		// WSAddress - HTTP address of WebSocket gateway, empty disables it
		WSAddress string
		// RedisURL - Redis to bridge with other relay processes, empty disables it
		RedisURL string
		// RedisChannel - Redis pub/sub channel of the bridge
		RedisChannel string
		// LogLevel - minimal level of log records
		LogLevel slog.Level
		// LogJSON - write log records as JSON instead of text
		LogJSON bool
		// ShutdownTimeout - how long to wait for clients on stop
		ShutdownTimeout time.Duration
	}
)

var (
	// Config - current configuration of the server
	Config = Configuration{
		Address:         "127.0.0.1:5000",
		Capacity:        hub.DefaultCapacity,
		LagPolicy:       relay.LagSkip,
		SelfDelivery:    true,
		WriteTimeout:    30 * time.Second,
		MaxLineLength:   line.DefaultMaxLength,
		RedisChannel:    bridge.DefaultChannel,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 10 * time.Second,
	}

	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// Version - app version fingerprint
	Version = semver.Binary(semver.V{Minor: 1})
)

// env - returns value of environment variable or fallback if it is empty.
func env(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func init() {
	out := flag.CommandLine.Output()
	printUsage := func() {
		fmt.Fprintf(out, "Launch line relay server over TCP\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		flag.PrintDefaults()
		fmt.Fprint(out, "\n")
	}
	printError := func(msg string) {
		fmt.Fprintf(out, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, msg)
	}

	help := false
	lagPolicy := Config.LagPolicy.String()
	logLevel := env("RELAY_LOG_LEVEL", Config.LogLevel.String())
	flag.BoolVar(&help, "help", false, "Print usage help")
	flag.StringVar(&Config.Address, "addr", env("RELAY_ADDR", Config.Address), "TCP listen address, env RELAY_ADDR")
	flag.IntVar(&Config.Capacity, "capacity", Config.Capacity, "Number of messages a client may lag behind before losing them")
	flag.StringVar(&lagPolicy, "lag-policy", lagPolicy, "Lagged client policy: skip missed messages or close connection")
	flag.BoolVar(&Config.SelfDelivery, "self-delivery", Config.SelfDelivery, "Deliver client lines back to the client itself")
	flag.DurationVar(&Config.ReadTimeout, "client-timeout", Config.ReadTimeout, "Idle duration before client is disconnected, 0 disables")
	flag.DurationVar(&Config.WriteTimeout, "write-timeout", Config.WriteTimeout, "Timeout of single write to client")
	flag.IntVar(&Config.MaxLineLength, "max-line", Config.MaxLineLength, "Max length of incoming line in bytes")
	flag.StringVar(&Config.WSAddress, "ws-addr", env("RELAY_WS_ADDR", ""), "HTTP address of WebSocket gateway, env RELAY_WS_ADDR")
	flag.StringVar(&Config.RedisURL, "redis-url", env("RELAY_REDIS_URL", ""), "Redis URL to bridge relay processes, env RELAY_REDIS_URL")
	flag.StringVar(&Config.RedisChannel, "redis-channel", env("RELAY_REDIS_CHANNEL", Config.RedisChannel), "Redis channel of the bridge")
	flag.StringVar(&logLevel, "log-level", logLevel, "Log level: debug, info, warn, error, env RELAY_LOG_LEVEL")
	flag.BoolVar(&Config.LogJSON, "log-json", false, "Write logs as JSON")
	flag.DurationVar(&Config.ShutdownTimeout, "shutdown-timeout", Config.ShutdownTimeout, "Time to wait for clients on stop")

	flag.Parse()

	if help {
		printUsage()
		os.Exit(0)
	}

	var err error
	if Config.LagPolicy, err = relay.ParseLagPolicy(lagPolicy); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	if err := Config.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		printError(fmt.Sprintf("invalid log-level %q", logLevel))
		os.Exit(1)
	}
	if Config.Capacity < 1 {
		printError("capacity value should be greater or equal 1")
		os.Exit(1)
	}
	if Config.ReadTimeout < 0 {
		printError("client-timeout value should not be negative")
		os.Exit(1)
	}
	if Config.WriteTimeout <= 0 {
		printError("write-timeout value should be positive")
		os.Exit(1)
	}
	if Config.MaxLineLength < 1 {
		printError("max-line value should be greater or equal 1")
		os.Exit(1)
	}

	fmt.Fprint(out, "Line relay server is launching, press Ctrl-C to stop...\n")
}
