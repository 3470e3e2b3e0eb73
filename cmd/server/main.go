package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/voice-assistant-service/internal/config"
	"github.com/skypro1111/voice-assistant-service/internal/llm"
	"github.com/skypro1111/voice-assistant-service/internal/metrics"
	"github.com/skypro1111/voice-assistant-service/internal/server"
	"github.com/skypro1111/voice-assistant-service/internal/session"
	"github.com/skypro1111/voice-assistant-service/internal/transcription"
	"github.com/skypro1111/voice-assistant-service/internal/tts"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-assistant-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envFile := flag.String("env", ".env", "Optional dotenv file with API keys")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Configuration summary without secrets
	logger.Info("Configuration loaded",
		slog.String("address", cfg.HTTP.GetAddress()),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("max_segment_duration", cfg.Audio.MaxSegmentDuration),
		slog.Float64("positive_speech_threshold", float64(cfg.VAD.PositiveThreshold)),
		slog.Int("min_speech_frames", cfg.VAD.MinSpeechFrames),
		slog.Bool("transcription_enabled", cfg.Transcription.Enabled),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.Bool("llm_enabled", cfg.LLM.Enabled),
		slog.String("llm_model", cfg.LLM.Model),
		slog.Bool("tts_enabled", cfg.TTS.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	gate, err := vad.NewProcessor(vad.Config{
		PositiveThreshold: cfg.VAD.PositiveThreshold,
		MinSpeechFrames:   cfg.VAD.MinSpeechFrames,
		FrameSize:         cfg.VAD.FrameSize,
		Smoothing:         cfg.VAD.Smoothing,
		EnergyScale:       cfg.VAD.EnergyScale,
	})
	if err != nil {
		logger.Error("Failed to create speech gate", slog.String("error", err.Error()))
		os.Exit(1)
	}

	deps := server.Dependencies{
		Gate:     gate,
		Metrics:  appMetrics,
		Gatherer: prometheus.DefaultGatherer,
	}
	sessionDeps := session.Dependencies{
		Gate:     gate,
		Observer: appMetrics,
	}

	if cfg.Transcription.Enabled {
		deps.Transcriber, err = transcription.NewClient(transcription.Config{
			BaseURL:        cfg.Transcription.BaseURL,
			APIKey:         cfg.Transcription.APIKey,
			Model:          cfg.Transcription.Model,
			Language:       cfg.Transcription.Language,
			ResponseFormat: cfg.Transcription.ResponseFormat,
			Temperature:    cfg.Transcription.Temperature,
			Timeout:        cfg.Transcription.GetTimeoutDuration(),
			MaxRetries:     cfg.Transcription.MaxRetries,
			MaxConcurrent:  cfg.Transcription.MaxConcurrent,
			RateLimit:      cfg.Transcription.RateLimit,
		})
		if err != nil {
			logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sessionDeps.Transcriber = deps.Transcriber
		logger.Info("Transcription client initialized",
			slog.String("base_url", cfg.Transcription.BaseURL),
			slog.String("model", cfg.Transcription.Model),
		)
	}

	if cfg.LLM.Enabled {
		deps.LLM, err = llm.NewClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.GetTimeoutDuration(),
			MaxRetries:  cfg.LLM.MaxRetries,
		})
		if err != nil {
			logger.Error("Failed to create chat client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sessionDeps.Chat = deps.LLM
		logger.Info("Chat client initialized",
			slog.String("base_url", cfg.LLM.BaseURL),
			slog.String("model", cfg.LLM.Model),
		)
	}

	if cfg.TTS.Enabled {
		voices := make([]tts.Voice, 0, len(cfg.TTS.Voices))
		for _, v := range cfg.TTS.Voices {
			voices = append(voices, tts.Voice{ID: v.ID, Upstream: v.Upstream, SampleRate: v.SampleRate})
		}

		deps.TTS, err = tts.NewClient(tts.Config{
			BaseURL:      cfg.TTS.BaseURL,
			APIKey:       cfg.TTS.APIKey,
			Model:        cfg.TTS.Model,
			Voices:       voices,
			DefaultVoice: cfg.TTS.DefaultVoice,
			Speed:        cfg.TTS.Speed,
			Timeout:      cfg.TTS.GetTimeoutDuration(),
			MaxRetries:   cfg.TTS.MaxRetries,
			CacheSize:    cfg.TTS.CacheSize,
		})
		if err != nil {
			logger.Error("Failed to create speech synthesis client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sessionDeps.Synthesizer = deps.TTS
		logger.Info("Speech synthesis client initialized",
			slog.String("base_url", cfg.TTS.BaseURL),
			slog.Int("voices", len(voices)),
			slog.String("default_voice", deps.TTS.DefaultVoice()),
		)
	}

	sessionMgr, err := session.NewManager(logger, session.Config{
		Timeout:            cfg.Session.GetTimeoutDuration(),
		CleanupInterval:    cfg.Session.GetCleanupIntervalDuration(),
		MaxSessions:        cfg.Session.MaxSessions,
		HistorySize:        cfg.Session.HistorySize,
		SystemPrompt:       cfg.LLM.SystemPrompt,
		Language:           cfg.Transcription.Language,
		MaxSegmentDuration: cfg.Audio.GetMaxSegmentDuration(),
		StageTimeout:       cfg.Session.GetStageTimeoutDuration(),
	}, sessionDeps)
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	deps.Sessions = sessionMgr
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Session.GetTimeoutDuration()),
		slog.Int("max_sessions", cfg.Session.MaxSessions),
	)

	httpServer, err := server.NewHTTPServer(cfg, logger, deps)
	if err != nil {
		logger.Error("Failed to create HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", cfg.HTTP.GetAddress()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop accepting requests and close open streams first
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	sessionMgr.Stop()

	if deps.Transcriber != nil {
		if err := deps.Transcriber.Close(); err != nil {
			logger.Error("Error closing transcription client", slog.String("error", err.Error()))
		}
	}

	stats := sessionMgr.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("total_sessions", stats.TotalSessions),
		slog.Uint64("total_turns", stats.TotalTurns),
		slog.Uint64("misfires", stats.Misfires),
		slog.Uint64("failed_turns", stats.FailedTurns),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
