package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"
	"github.com/rakunlabs/tell"
)

var Service = ""

// Config is the process configuration for the synth CLI and server.
// Values load from file and environment (SYNTH_ prefix) via chu.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Definition is the path of the pipeline document (JSON or YAML).
	Definition string `cfg:"definition"`

	// User and SessionID override the generated identifiers passed to
	// providers and cost hooks.
	User      string `cfg:"user"`
	SessionID string `cfg:"session_id"`

	// Retries overrides the validation retry budget (0 keeps the default).
	Retries int `cfg:"retries"`

	// Storage configures where binary tool outputs land.
	Storage Storage `cfg:"storage"`

	// Retrieval configures the optional Milvus-backed retriever.
	Retrieval Retrieval `cfg:"retrieval"`

	Server    Server      `cfg:"server"`
	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

// Storage configures the object store for binary tool outputs.
type Storage struct {
	// Prefix is the base URL reported for stored objects.
	Prefix string `cfg:"prefix" default:"memory://"`
}

// Retrieval configures the vector store used by rag outputs.
type Retrieval struct {
	// Address is the Milvus endpoint ("host:port"). Empty disables retrieval.
	Address string `cfg:"address"`

	// Collection is the default collection searched by rag queries.
	Collection string `cfg:"collection" default:"synth"`
}

// Server configures the HTTP API.
type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`
}

// Load reads configuration and applies the log level.
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("SYNTH_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
