package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docaudio/internal/api"
	"github.com/dgallion1/docaudio/internal/metrics"
	"github.com/dgallion1/docaudio/internal/pipeline"
	"github.com/dgallion1/docaudio/internal/synth"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audiobook job service",
	Long: `Run the HTTP job service.

Documents are uploaded to POST /api/jobs and processed by a fixed pool of
workers. Poll /api/jobs/{id}/status and fetch the result from
/api/jobs/{id}/audio. Prometheus metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "Listen port (default from config, 8090)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	stats := synth.NewStats(time.Hour)
	runner, client := newRunner(cfg, log, stats, m)

	queue := pipeline.NewQueue(pipeline.QueueConfig{
		BaseDir:      cfg.WorkDir,
		Workers:      cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, runner, log, m)
	queue.Start(ctx)

	srv := api.NewServer(queue, stats, m, log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // audio downloads can be large
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		queue.Stop()
		client.Close()
	}()

	log.Info("starting docaudio", "port", cfg.Port, "tts_url", cfg.TTS.URL, "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		return fmt.Errorf("server error: %w", err)
	}
	<-done
	return nil
}
