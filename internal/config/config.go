// Package config resolves settings from flags, the environment, an optional
// .env file, an optional TOML file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/rudransh-shrivastava/peerdrop/internal/identity"
	"github.com/rudransh-shrivastava/peerdrop/internal/protocol"
	"github.com/rudransh-shrivastava/peerdrop/internal/session"
)

const (
	DefaultSignalURL  = "ws://localhost:8080/ws"
	DefaultSignalAddr = ":8080"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultOutputDir  = "."

	envPrefix = "PEERDROP_"
)

type Config struct {
	SignalURL   string   `toml:"signal_url"`
	SignalAddr  string   `toml:"signal_addr"`
	STUNServers []string `toml:"stun_servers"`
	TURNServer  string   `toml:"turn_server"`
	TURNUser    string   `toml:"turn_user"`
	TURNPass    string   `toml:"turn_pass"`
	IDPolicy    string   `toml:"id_policy"`
	IDDigits    int      `toml:"id_digits"`
	Capacity    int      `toml:"capacity"`
	Format      string   `toml:"format"`
	HistoryPath string   `toml:"history_path"`
	OutputDir   string   `toml:"output_dir"`
	LogLevel    string   `toml:"log_level"`
	LogFile     string   `toml:"log_file"`
}

// Options carries CLI flag values. Zero values mean "not set".
type Options struct {
	ConfigPath string
	EnvFile    string

	SignalURL   string
	SignalAddr  string
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	IDPolicy    string
	Capacity    int
	Format      string
	HistoryPath string
	OutputDir   string
	LogLevel    string
	LogFile     string
}

func Default() *Config {
	return &Config{
		SignalURL:   DefaultSignalURL,
		SignalAddr:  DefaultSignalAddr,
		STUNServers: []string{DefaultSTUN},
		IDPolicy:    identity.PolicyNumeric,
		IDDigits:    identity.DefaultDigits,
		Capacity:    session.DefaultCapacity,
		Format:      string(protocol.FormatJSON),
		HistoryPath: defaultHistoryPath(),
		OutputDir:   DefaultOutputDir,
	}
}

func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.ConfigPath != "" {
		if _, err := toml.DecodeFile(opts.ConfigPath, cfg); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", opts.ConfigPath, err)
		}
	}

	// .env never overrides variables already set in the environment.
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyOptions(opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.SignalURL, "SIGNAL_URL")
	setString(&c.SignalAddr, "SIGNAL_ADDR")
	setString(&c.TURNServer, "TURN_SERVER")
	setString(&c.TURNUser, "TURN_USER")
	setString(&c.TURNPass, "TURN_PASS")
	setString(&c.IDPolicy, "ID_POLICY")
	setString(&c.Format, "FORMAT")
	setString(&c.HistoryPath, "HISTORY")
	setString(&c.OutputDir, "OUTPUT_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")

	if v := os.Getenv(envPrefix + "STUN"); v != "" {
		c.STUNServers = splitList(v)
	}
	if err := setInt(&c.IDDigits, "ID_DIGITS"); err != nil {
		return err
	}
	return setInt(&c.Capacity, "CAPACITY")
}

func (c *Config) applyOptions(opts Options) {
	override(&c.SignalURL, opts.SignalURL)
	override(&c.SignalAddr, opts.SignalAddr)
	override(&c.TURNServer, opts.TURNServer)
	override(&c.TURNUser, opts.TURNUser)
	override(&c.TURNPass, opts.TURNPass)
	override(&c.IDPolicy, opts.IDPolicy)
	override(&c.Format, opts.Format)
	override(&c.HistoryPath, opts.HistoryPath)
	override(&c.OutputDir, opts.OutputDir)
	override(&c.LogLevel, opts.LogLevel)
	override(&c.LogFile, opts.LogFile)

	if len(opts.STUNServers) > 0 {
		c.STUNServers = opts.STUNServers
	}
	if opts.Capacity != 0 {
		c.Capacity = opts.Capacity
	}
}

func (c *Config) Validate() error {
	if _, err := protocol.ParseFormat(c.Format); err != nil {
		return err
	}
	switch c.IDPolicy {
	case identity.PolicyNumeric, identity.PolicyAssigned:
	default:
		return fmt.Errorf("unknown id policy %q", c.IDPolicy)
	}
	if c.IDDigits < 1 || c.IDDigits > 18 {
		return fmt.Errorf("id digits must be between 1 and 18, got %d", c.IDDigits)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.SignalURL == "" {
		return errors.New("signal url is required")
	}
	return nil
}

// WireFormat is Format parsed. Only valid after Validate.
func (c *Config) WireFormat() protocol.Format {
	f, _ := protocol.ParseFormat(c.Format)
	return f
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "peerdrop-history.sqlite3"
	}
	return filepath.Join(dir, "peerdrop", "history.sqlite3")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
