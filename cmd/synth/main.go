package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"
	"github.com/rakunlabs/tell"

	"github.com/hiresynth/synth/internal/config"
	"github.com/hiresynth/synth/internal/server"
	"github.com/hiresynth/synth/pkg/retriever/milvus"
	"github.com/hiresynth/synth/pkg/synth"

	_ "github.com/hiresynth/synth/pkg/synth/providers/lorem"
)

var (
	name    = "synth"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// ///////////////////////////////////////////////////////////////////

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	collector, err := tell.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer collector.Shutdown()

	if cfg.Definition == "" {
		return fmt.Errorf("no pipeline definition configured")
	}

	data, err := os.ReadFile(cfg.Definition)
	if err != nil {
		return fmt.Errorf("read definition %s: %w", cfg.Definition, err)
	}

	def, err := synth.ParseDefinition(data)
	if err != nil {
		return fmt.Errorf("parse definition: %w", err)
	}

	opts := []synth.Option{
		synth.WithObjectStore(synth.NewMemoryObjectStore(cfg.Storage.Prefix)),
	}
	if cfg.Retrieval.Address != "" {
		retriever, err := milvus.New(ctx, cfg.Retrieval.Address, milvus.HashEmbedder{}, milvus.WithCollection(cfg.Retrieval.Collection))
		if err != nil {
			return fmt.Errorf("connect retriever: %w", err)
		}
		defer retriever.Close()

		opts = append(opts, synth.WithRetriever(retriever))
	}
	if cfg.User != "" {
		opts = append(opts, synth.WithUser(cfg.User))
	}
	if cfg.SessionID != "" {
		opts = append(opts, synth.WithSessionID(cfg.SessionID))
	}
	if cfg.Retries > 0 {
		opts = append(opts, synth.WithRetries(cfg.Retries))
	}

	machine, err := synth.New(def, opts...)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	mode := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		mode = args[0]
	}

	switch mode {
	case "serve":
		srv, err := server.New(cfg.Server, machine)
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}

		slog.Info("starting server", "host", cfg.Server.Host, "port", cfg.Server.Port)

		return srv.Start(ctx)
	case "run":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s run <trigger> [params-json]", name)
		}

		return runTrigger(ctx, machine, args[1], args[2:])
	default:
		return fmt.Errorf("unknown mode %q, expected run or serve", mode)
	}
}

// runTrigger fires one trigger, prints the event stream as NDJSON, and
// dumps the final memory.
func runTrigger(ctx context.Context, machine *synth.Synth, trigger string, rest []string) error {
	var params map[string]any
	if len(rest) > 0 {
		if err := json.Unmarshal([]byte(rest[0]), &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}

	events, err := machine.StreamingTrigger(ctx, trigger, params)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}

	slog.Info("run complete", "state", machine.CurrentState())

	return enc.Encode(machine.Memory())
}
