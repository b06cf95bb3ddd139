package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/sarchlab/ptdump/memory"
	"github.com/sarchlab/ptdump/paging"
)

// Environment variables that provide defaults for the flags. They can also
// be set in a .env file in the working directory.
const (
	envSegments = "PTDUMP_SEGMENTS"
	envLevel    = "PTDUMP_LEVEL"
	envLogLevel = "PTDUMP_LOG_LEVEL"
	envRecord   = "PTDUMP_RECORD"
	envPort     = "PTDUMP_PORT"
	envDotEnv   = "PTDUMP_ENV_FILE"
)

// Config holds the settings shared by all commands.
type Config struct {
	SegmentList string
	Level       string
	LogLevel    string
	Record      string
	Port        int

	segments []memory.Segment
	level    paging.Level
	logLevel slog.Level
}

func loadDotEnv() error {
	path := os.Getenv(envDotEnv)
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// loadConfig reads the defaults from the environment after loading the
// .env file.
func loadConfig() Config {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
	}

	return configFromEnv()
}

func configFromEnv() Config {
	c := Config{
		SegmentList: os.Getenv(envSegments),
		Level:       os.Getenv(envLevel),
		LogLevel:    os.Getenv(envLogLevel),
		Record:      os.Getenv(envRecord),
	}

	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}

	if port, err := strconv.Atoi(os.Getenv(envPort)); err == nil {
		c.Port = port
	}

	return c
}

// applyFlags merges the command-line flags into the configuration and
// validates the result.
func (c *Config) applyFlags(flags *pflag.FlagSet) error {
	var err error

	if c.segments, err = memory.ParseSegments(c.SegmentList); err != nil {
		return fmt.Errorf("%s: %w", envSegments, err)
	}

	args, _ := flags.GetStringArray("segment")
	for _, arg := range args {
		seg, err := memory.ParseSegment(arg)
		if err != nil {
			return err
		}

		c.segments = append(c.segments, seg)
	}

	if flags.Changed("level") {
		c.Level, _ = flags.GetString("level")
	}

	if c.level, err = paging.ParseLevel(c.Level); err != nil {
		return err
	}

	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}

	if err = c.logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	newLogger(c.logLevel)

	return nil
}

// loadMemory builds the storage tables are read from.
func (c *Config) loadMemory() (*memory.Storage, error) {
	if len(c.segments) == 0 {
		return nil, errors.New("no memory loaded, use --segment ADDR=PATH")
	}

	storage, err := memory.Load(c.segments)
	if err != nil {
		return nil, err
	}

	slog.Debug("memory loaded",
		"segments", len(c.segments), "units", storage.NumUnits())

	return storage, nil
}
