package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/37-AN/43v3rm1x/internal/config"
	"github.com/37-AN/43v3rm1x/internal/engine"
	"github.com/37-AN/43v3rm1x/internal/library"
	"github.com/37-AN/43v3rm1x/internal/logger"
	"github.com/37-AN/43v3rm1x/internal/server"
	"github.com/37-AN/43v3rm1x/internal/stream"
)

var (
	flagPort    int
	flagLibrary string
	flagFFmpeg  string
)

var rootCmd = &cobra.Command{
	Use:   "mixd",
	Short: "43v3rm1x mixing engine daemon",
	Long:  "mixd runs the 43v3rm1x two-deck mixing engine: decks, mix bus, monitor streams and session recording behind an HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP listen port (overrides MIXD_PORT)")
	rootCmd.Flags().StringVarP(&flagLibrary, "library", "l", "", "track library directory (overrides MIXD_LIBRARY_DIR)")
	rootCmd.Flags().StringVar(&flagFFmpeg, "ffmpeg", "", "ffmpeg binary path (overrides MIXD_FFMPEG_PATH)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	cfg := config.Load()
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if flagLibrary != "" {
		cfg.LibraryDir = flagLibrary
	}
	if flagFFmpeg != "" {
		cfg.FFmpegPath = flagFFmpeg
	}

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
	})
	defer logger.Sync()

	logger.Info("mixd starting",
		logger.Int("port", cfg.Port),
		logger.String("library", cfg.LibraryDir),
		logger.String("ffmpeg", cfg.FFmpegPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Config{
		FFmpegPath:     cfg.FFmpegPath,
		AnalyzerBins:   cfg.AnalyzerBins,
		CrossfaderInit: cfg.CrossfaderInit,
	})

	lib := library.New(cfg.LibraryDir)
	if err := lib.Scan(); err != nil {
		logger.Warn("library scan failed", logger.ErrorField(err))
	} else if err := lib.Watch(ctx); err != nil {
		logger.Warn("library watch failed", logger.ErrorField(err))
	}

	broadcaster := stream.NewBroadcaster()
	recorder := engine.NewRecorder(broadcaster, func() engine.Encoder {
		return &engine.FFmpegEncoder{
			Path:    cfg.FFmpegPath,
			Format:  cfg.RecordFormat,
			Bitrate: cfg.RecordBitrate,
		}
	})

	go eng.Run(ctx)
	go broadcaster.Run(ctx, eng.Frames())

	srv := server.New(eng, lib, recorder,
		stream.NewHTTPHandler(broadcaster, cfg.FFmpegPath),
		stream.NewWebRTCHandler(broadcaster),
		cfg.AnalyzerBins,
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", logger.ErrorField(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logger.ErrorField(err))
	}

	logger.Info("mixd stopped")
	return nil
}
