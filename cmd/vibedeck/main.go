// Package main provides the vibedeck entry point.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/app/dispatch"
	"github.com/osa030/vibedeck/internal/app/fetch"
	"github.com/osa030/vibedeck/internal/app/playback"
	"github.com/osa030/vibedeck/internal/app/store"
	"github.com/osa030/vibedeck/internal/infra/anthropic"
	"github.com/osa030/vibedeck/internal/infra/audio"
	"github.com/osa030/vibedeck/internal/infra/config"
	"github.com/osa030/vibedeck/internal/infra/logger"
	"github.com/osa030/vibedeck/internal/infra/ytdlp"
	"github.com/osa030/vibedeck/internal/tui"
)

var (
	app        = kingpin.New("vibedeck", "agent-orchestrated terminal music player")
	configPath = app.Flag("config", "Path to config file").Default("config/vibedeck.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: next to the cache dir)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		File:  cfg.Log.File,
		Level: cfg.Log.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("vibedeck error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components and enters the render loop. A separate function
// ensures defers fire even when returning with an error.
func run(cfg *config.Config) error {
	zlog.Info().Msgf("vibedeck starting: cache=%s model=%s", cfg.CacheDir, cfg.LLM.Model)

	st := store.New(cfg.Volume)

	source, err := ytdlp.New(ytdlp.Config{
		Binary:   cfg.Fetch.Binary,
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		return err
	}

	pipeline := fetch.New(st, source, fetch.Config{
		Concurrency: cfg.Fetch.Concurrency,
		Backlog:     cfg.Fetch.Backlog,
		Timeout:     cfg.FetchTimeout(),
	})
	defer pipeline.Close()

	output := audio.NewOutput(cfg.Volume)

	engine := playback.New(st, output, pipeline, playback.Config{
		Tick:              cfg.PlaybackTick(),
		PrefetchThreshold: cfg.PrefetchThreshold(),
		PrefetchCount:     cfg.Playback.PrefetchCount,
	})
	engine.Start()
	defer engine.Close()

	llm, err := anthropic.New(anthropic.Config{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLMTimeout(),
	})
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(st, engine, pipeline, llm)

	model := tui.NewModel(st, engine, dispatcher, cfg.PlaybackTick())
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	zlog.Info().Msg("vibedeck exited cleanly")
	return nil
}
