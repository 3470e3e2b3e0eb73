package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/voice-assistant-service/internal/mockapi"
)

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	transcript := flag.String("transcript", mockapi.DefaultTranscript, "Text returned for every transcription")
	speechRate := flag.Int("speech-rate", mockapi.DefaultSpeechRate, "Sample rate of generated speech")
	latency := flag.Duration("latency", 200*time.Millisecond, "Artificial response delay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mock := mockapi.NewServer(logger, mockapi.Options{
		Transcript: *transcript,
		SpeechRate: *speechRate,
		Latency:    *latency,
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mock,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Mock API server starting",
			slog.String("address", *addr),
			slog.String("base_url", "http://localhost"+*addr+"/v1"),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.String("error", err.Error()))
	}

	stats := mock.GetStats()
	logger.Info("Mock API server stopped",
		slog.Uint64("transcriptions", stats.Transcriptions),
		slog.Uint64("chat_completions", stats.ChatCompletions),
		slog.Uint64("completions", stats.Completions),
		slog.Uint64("speech", stats.Speech),
	)
}
