// Package config loads the typed configuration for each core subsystem from
// environment variables, following the same EnvConfig/Validator pattern as
// the broader eve codebase's config package, retargeted at the options
// table in spec §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvConfig reads environment variables under an optional prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a loader for variables named PREFIX_KEY (or KEY if
// prefix is empty).
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix == "" {
		return key
	}
	return ec.prefix + "_" + key
}

// GetString returns the named variable or defaultValue if unset.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetInt returns the named variable parsed as int, or defaultValue.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetBool returns the named variable parsed as bool, or defaultValue.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetDuration returns the named variable parsed as a duration, or
// defaultValue.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetBytes returns the named variable parsed as a human-readable byte size
// ("512MB", "2GiB", a bare integer), or defaultValue.
func (ec *EnvConfig) GetBytes(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := humanize.ParseBytes(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// Validator accumulates configuration validation errors.
type Validator struct {
	errors []string
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

// RequirePositiveInt records an error if value is not positive.
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireString records an error if value is empty.
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// Validate returns a combined error if any checks failed.
func (v *Validator) Validate() error {
	if len(v.errors) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(v.errors, "; "))
}

// LayerCacheConfig configures the Layered Hybrid Cache (spec §6).
type LayerCacheConfig struct {
	DiskPath                string
	MemoryBytes             uint64
	DiskAdmissionRateLimit  uint64 // bytes/sec
	DiskBufferFlushers      int
	GracefulShutdownTimeout time.Duration
}

// LoadLayerCacheConfig loads LHC configuration from PREFIX_-prefixed
// environment variables, defaulting memory_bytes to system memory minus
// 512MiB when PREFIX_MEMORY_BYTES is unset and totalSystemMemory is known.
func LoadLayerCacheConfig(prefix string, totalSystemMemory uint64) (LayerCacheConfig, error) {
	env := NewEnvConfig(prefix)

	defaultMemory := uint64(512 * humanize.MiByte)
	if totalSystemMemory > 512*humanize.MiByte {
		defaultMemory = totalSystemMemory - 512*humanize.MiByte
	}

	cfg := LayerCacheConfig{
		DiskPath:                env.GetString("DISK_PATH", "./si-core-cache"),
		MemoryBytes:             env.GetBytes("MEMORY_BYTES", defaultMemory),
		DiskAdmissionRateLimit:  env.GetBytes("DISK_ADMISSION_RATE_LIMIT", 64*humanize.MiByte),
		DiskBufferFlushers:      env.GetInt("DISK_BUFFER_FLUSHERS", 4),
		GracefulShutdownTimeout: env.GetDuration("GRACEFUL_SHUTDOWN_TIMEOUT", 10*time.Minute),
	}

	validator := NewValidator()
	validator.RequireString("DiskPath", cfg.DiskPath)
	validator.RequirePositiveInt("DiskBufferFlushers", cfg.DiskBufferFlushers)
	if err := validator.Validate(); err != nil {
		return LayerCacheConfig{}, err
	}
	return cfg, nil
}

// RebaserConfig configures the Rebaser client/server protocol (spec §4.G, §6).
type RebaserConfig struct {
	SubjectPrefix   string
	StreamRetention time.Duration
}

// LoadRebaserConfig loads Rebaser configuration.
func LoadRebaserConfig(prefix string) RebaserConfig {
	env := NewEnvConfig(prefix)
	return RebaserConfig{
		SubjectPrefix:   env.GetString("SUBJECT_PREFIX", "rebaser"),
		StreamRetention: env.GetDuration("STREAM_RETENTION", 6*time.Hour),
	}
}

// SchedulerConfig configures the Action Scheduler.
type SchedulerConfig struct {
	DispatchWorkers int
	FuncRunTimeout  time.Duration
}

// LoadSchedulerConfig loads Scheduler configuration.
func LoadSchedulerConfig(prefix string) SchedulerConfig {
	env := NewEnvConfig(prefix)
	return SchedulerConfig{
		DispatchWorkers: env.GetInt("DISPATCH_WORKERS", 4),
		FuncRunTimeout:  env.GetDuration("FUNC_RUN_TIMEOUT", 5*time.Minute),
	}
}

// LoggingConfig configures process-wide structured logging (spec §6 CLI surface).
type LoggingConfig struct {
	Verbose    int
	JSON       bool
	ForceColor bool
	NoColor    bool
}

// LoadLoggingConfig parses the §6 CLI surface (--verbose, --log-json,
// --force-color, --no-color) from args, with SI_CORE_-prefixed environment
// variables as a fallback for unset flags — the same flags+env overlay
// pattern viper/pflag give the rest of this codebase's CLIs.
func LoadLoggingConfig(args []string) (LoggingConfig, error) {
	fs := pflag.NewFlagSet("si-core", pflag.ContinueOnError)
	verbose := fs.CountP("verbose", "v", "increase log verbosity (repeatable)")
	logJSON := fs.Bool("log-json", false, "emit structured JSON logs instead of text")
	forceColor := fs.Bool("force-color", false, "force colored text output even when stdout is not a tty")
	noColor := fs.Bool("no-color", false, "disable colored text output")
	if err := fs.Parse(args); err != nil {
		return LoggingConfig{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SI_CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return LoggingConfig{}, err
	}

	cfg := LoggingConfig{
		Verbose:    *verbose,
		JSON:       *logJSON,
		ForceColor: *forceColor,
		NoColor:    *noColor,
	}
	if v.IsSet("verbose") {
		cfg.Verbose = v.GetInt("verbose")
	}
	if v.IsSet("log-json") {
		cfg.JSON = v.GetBool("log-json")
	}
	if v.IsSet("force-color") {
		cfg.ForceColor = v.GetBool("force-color")
	}
	if v.IsSet("no-color") {
		cfg.NoColor = v.GetBool("no-color")
	}
	return cfg, nil
}
