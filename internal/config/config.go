// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the listener configuration.
//
// Values are resolved in this order, later sources winning: built-in
// defaults, the YAML file named by --config, DNSSTEAL_* environment
// variables (a .env file is auto-loaded by the command), command line
// flags. The listen address may also be given as the only positional
// argument.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bassosimone/dnssteal"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// MinIOConfig holds object storage settings. An empty endpoint
// disables the object storage sink.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Config is the listener configuration.
type Config struct {
	// ListenAddr is the UDP address of the DNS listener.
	ListenAddr string `yaml:"listen_addr"`

	// Zone is the zone the listener is authoritative for. Empty
	// means that the last label of each name is ignored.
	Zone string `yaml:"zone"`

	// DumpFiles enables writing completed files to DumpDir.
	DumpFiles bool `yaml:"dump_files"`

	// DumpDir is where completed files are written.
	DumpDir string `yaml:"dump_dir"`

	// HTTPAddr is the TCP address of the viewer. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// IdleThreshold is the idle time after which a transfer is assembled.
	IdleThreshold time.Duration `yaml:"idle_threshold"`

	// SweepInterval is the time between sweeps.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// RecentFiles is the number of completed files kept for the viewer.
	RecentFiles int `yaml:"recent_files"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is either text or json.
	LogFormat string `yaml:"log_format"`

	// MinIO configures the object storage sink.
	MinIO MinIOConfig `yaml:"minio"`
}

// ErrInvalid indicates that the configuration is not usable.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		ListenAddr:    "127.0.0.1:5353",
		Zone:          "",
		DumpFiles:     false,
		DumpDir:       ".",
		HTTPAddr:      "127.0.0.1:8080",
		IdleThreshold: dnssteal.DefaultIdleThreshold,
		SweepInterval: dnssteal.DefaultSweepInterval,
		RecentFiles:   32,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load resolves the configuration from the given command line
// arguments (without the program name) and the environment. It
// returns [pflag.ErrHelp] when help was requested.
func Load(args []string) (*Config, error) {
	cfg := Default()

	flags := pflag.NewFlagSet("dnssteal", pflag.ContinueOnError)
	configFile := flags.String("config", os.Getenv("DNSSTEAL_CONFIG"), "path to a YAML configuration file")
	listenAddr := flags.StringP("listen", "l", cfg.ListenAddr, "UDP address of the DNS listener")
	zone := flags.String("zone", cfg.Zone, "zone the listener is authoritative for")
	dumpFiles := flags.BoolP("dump-files", "d", cfg.DumpFiles, "write completed files to disk")
	dumpDir := flags.String("dump-dir", cfg.DumpDir, "directory for --dump-files")
	httpAddr := flags.String("http", cfg.HTTPAddr, "TCP address of the viewer (empty disables it)")
	idle := flags.Duration("idle-threshold", cfg.IdleThreshold, "idle time after which a transfer is assembled")
	interval := flags.Duration("sweep-interval", cfg.SweepInterval, "time between sweeps")
	recent := flags.Int("recent-files", cfg.RecentFiles, "number of completed files kept for the viewer")
	logLevel := flags.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	logFormat := flags.String("log-format", cfg.LogFormat, "log format: text or json")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	// 1. the YAML file overrides the defaults
	if *configFile != "" {
		if err := cfg.loadFile(*configFile); err != nil {
			return nil, err
		}
	}

	// 2. the environment overrides the YAML file
	cfg.loadEnv()

	// 3. explicit flags override everything
	if flags.Changed("listen") {
		cfg.ListenAddr = *listenAddr
	}
	if flags.Changed("zone") {
		cfg.Zone = *zone
	}
	if flags.Changed("dump-files") {
		cfg.DumpFiles = *dumpFiles
	}
	if flags.Changed("dump-dir") {
		cfg.DumpDir = *dumpDir
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = *httpAddr
	}
	if flags.Changed("idle-threshold") {
		cfg.IdleThreshold = *idle
	}
	if flags.Changed("sweep-interval") {
		cfg.SweepInterval = *interval
	}
	if flags.Changed("recent-files") {
		cfg.RecentFiles = *recent
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	switch rest := flags.Args(); len(rest) {
	case 0:
	case 1:
		cfg.ListenAddr = rest[0]
	default:
		return nil, fmt.Errorf("%w: unexpected argument: %s", ErrInvalid, rest[1])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate makes sure the configuration is usable.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalid)
	}
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("%w: idle threshold must be positive", ErrInvalid)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalid)
	}
	if c.RecentFiles < 0 {
		return fmt.Errorf("%w: recent files must not be negative", ErrInvalid)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.LogFormat)
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		return fmt.Errorf("%w: minio bucket is required", ErrInvalid)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalid, path, err.Error())
	}
	return nil
}

func (c *Config) loadEnv() {
	c.ListenAddr = getEnv("DNSSTEAL_LISTEN_ADDR", c.ListenAddr)
	c.Zone = getEnv("DNSSTEAL_ZONE", c.Zone)
	c.DumpFiles = getEnvBool("DNSSTEAL_DUMP_FILES", c.DumpFiles)
	c.DumpDir = getEnv("DNSSTEAL_DUMP_DIR", c.DumpDir)
	c.HTTPAddr = getEnv("DNSSTEAL_HTTP_ADDR", c.HTTPAddr)
	c.IdleThreshold = getEnvDuration("DNSSTEAL_IDLE_THRESHOLD", c.IdleThreshold)
	c.SweepInterval = getEnvDuration("DNSSTEAL_SWEEP_INTERVAL", c.SweepInterval)
	c.RecentFiles = getEnvInt("DNSSTEAL_RECENT_FILES", c.RecentFiles)
	c.LogLevel = getEnv("DNSSTEAL_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("DNSSTEAL_LOG_FORMAT", c.LogFormat)
	c.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", c.MinIO.Endpoint)
	c.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIO.AccessKey)
	c.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", c.MinIO.SecretKey)
	c.MinIO.Bucket = getEnv("MINIO_BUCKET", c.MinIO.Bucket)
	c.MinIO.UseSSL = getEnvBool("MINIO_USE_SSL", c.MinIO.UseSSL)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
