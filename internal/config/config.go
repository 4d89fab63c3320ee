// Package config loads syncq configuration from CUE files.
//
// A file is compiled, unified with the embedded schema (schema.cue), checked
// for concreteness and decoded over Default. Fields the file omits keep
// their defaults:
//
//	store: dsn: "postgres://syncq@localhost/syncq?sslmode=disable"
//	queue: maxRetries: 5
//	retention: window: "72h"
//	log: {level: "debug", format: "json"}
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/syncq/internal/engine"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/service"
	"github.com/roach88/syncq/internal/sweeper"
)

//go:embed schema.cue
var schemaSource []byte

// Config is the full set of tunables.
type Config struct {
	Store     StoreConfig     `json:"store"`
	Queue     QueueConfig     `json:"queue"`
	Retention RetentionConfig `json:"retention"`
	HTTP      HTTPConfig      `json:"http"`
	Log       LogConfig       `json:"log"`
}

type StoreConfig struct {
	DSN string `json:"dsn"`
}

type QueueConfig struct {
	MaxRetries int `json:"maxRetries"`
	ClaimLimit int `json:"claimLimit"`
	BatchCap   int `json:"batchCap"`
}

type RetentionConfig struct {
	Window   Duration `json:"window"`
	Interval Duration `json:"interval"`
	Limit    int      `json:"limit"`
}

type HTTPConfig struct {
	Addr      string `json:"addr"`
	JWTSecret string `json:"jwtSecret"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Duration is a time.Duration written as a Go duration string ("24h").
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if parsed <= 0 {
		return fmt.Errorf("duration must be positive: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{DSN: "sqlite://syncq.db"},
		Queue: QueueConfig{
			MaxRetries: engine.DefaultMaxRetries,
			ClaimLimit: queue.DefaultClaimLimit,
			BatchCap:   queue.DefaultBatchCap,
		},
		Retention: RetentionConfig{
			Window:   Duration(sweeper.DefaultWindow),
			Interval: Duration(sweeper.DefaultInterval),
			Limit:    sweeper.DefaultLimit,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the CUE file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates CUE source against the schema and applies it over Default.
// filename is used only in error positions.
func Parse(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	user := ctx.CompileBytes(data, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	out, err := v.MarshalJSON()
	if err != nil {
		return Config{}, formatCUEError(err)
	}
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		p := positions[0]
		return fmt.Errorf("%s:%d:%d: %s", p.Filename(), p.Line(), p.Column(), first.Error())
	}
	return fmt.Errorf("config: %s", first.Error())
}

// ServiceOptions maps the queue and retention blocks onto service options.
func (c Config) ServiceOptions() service.Options {
	maxRetries := c.Queue.MaxRetries
	return service.Options{
		MaxRetries:      &maxRetries,
		ClaimLimit:      c.Queue.ClaimLimit,
		BatchCap:        c.Queue.BatchCap,
		RetentionWindow: time.Duration(c.Retention.Window),
		SweepInterval:   time.Duration(c.Retention.Interval),
		SweepLimit:      c.Retention.Limit,
	}
}

// SlogLevel returns the configured level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
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

// Handler builds the slog handler described by the log block.
func (l LogConfig) Handler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
