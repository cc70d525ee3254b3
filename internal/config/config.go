// Package config loads engine configuration from YAML.
//
// Files are decoded strictly (unknown keys are errors), missing keys take
// their defaults, and the result is validated against an embedded CUE
// schema before it is used.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/raycorr/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Config is the file form of the engine's tunables.
type Config struct {
	Epsilon             float64 `yaml:"epsilon" json:"epsilon"`
	TTLMillis           int64   `yaml:"ttl_ms" json:"ttl_ms"`
	PruneIntervalMillis int64   `yaml:"prune_interval_ms" json:"prune_interval_ms"`
	LogLevel            string  `yaml:"log_level" json:"log_level"`
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		Epsilon:             engine.DefaultEpsilon,
		TTLMillis:           engine.DefaultTTL.Milliseconds(),
		PruneIntervalMillis: engine.DefaultPruneInterval.Milliseconds(),
		LogLevel:            "info",
	}
}

// ConfigError reports an invalid configuration.
type ConfigError struct {
	// Source is the file the configuration came from, if any.
	Source string
	// Field is the offending key, empty when the whole document is bad.
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// IsConfigError reports whether err is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes and validates a YAML document. source names the document in
// errors and may be empty.
//
// An empty document yields Default().
func Parse(data []byte, source string) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &ConfigError{Source: source, Message: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Source = source
		}
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return toConfigError(err)
	}
	return nil
}

// toConfigError converts the first CUE validation error into a ConfigError.
// Definition selectors are dropped from the path, leaving the YAML key.
func toConfigError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Message: err.Error()}
	}
	first := errs[0]
	var field []string
	for _, sel := range first.Path() {
		if strings.HasPrefix(sel, "#") {
			continue
		}
		field = append(field, sel)
	}
	format, args := first.Msg()
	return &ConfigError{
		Field:   strings.Join(field, "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// TTL returns the request time-to-live.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLMillis) * time.Millisecond
}

// PruneInterval returns the background prune period.
func (c Config) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalMillis) * time.Millisecond
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EngineOptions converts c into engine options.
func (c Config) EngineOptions() []engine.EngineOption {
	return []engine.EngineOption{
		engine.WithEpsilon(c.Epsilon),
		engine.WithTTL(c.TTL()),
		engine.WithPruneInterval(c.PruneInterval()),
	}
}
