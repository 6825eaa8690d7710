// Package config loads the runner configuration from YAML and validates it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// EnvVerbose enables verbose mode when set to any value.
const EnvVerbose = "COORDTEST_VERBOSE"

// EnvLogLevel names the log level of verbose runs.
const EnvLogLevel = "COORDTEST_LOG_LEVEL"

// DefaultWaitTimeout bounds how long wait-sql retries before failing.
const DefaultWaitTimeout = 5 * time.Second

//go:embed schema.cue
var schemaSource string

// Config is the runner configuration. Every field is encoded for
// validation, so zero values are checked rather than skipped.
type Config struct {
	Scripts     string        `yaml:"scripts" json:"scripts"`
	Verbose     bool          `yaml:"verbose" json:"verbose"`
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	LogLevel    string        `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Scripts:     "testdata",
		WaitTimeout: DefaultWaitTimeout,
		LogLevel:    "info",
	}
}

// Load reads the YAML file at path over the defaults, validates the result
// and applies the environment. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if VerboseFromEnv() {
		cfg.Verbose = true
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Validate checks cfg against the #Config schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

// Level maps LogLevel to a slog level. Unknown names map to info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// LevelFromEnv returns the level named by EnvLogLevel, info when it is unset
// or unknown.
func LevelFromEnv() slog.Level {
	return Config{LogLevel: os.Getenv(EnvLogLevel)}.Level()
}

// VerboseFromEnv reports whether EnvVerbose is set.
func VerboseFromEnv() bool {
	_, ok := os.LookupEnv(EnvVerbose)
	return ok
}
