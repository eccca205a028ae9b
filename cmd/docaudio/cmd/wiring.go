package cmd

import (
	"log/slog"

	"github.com/dgallion1/docaudio/internal/audio"
	"github.com/dgallion1/docaudio/internal/config"
	"github.com/dgallion1/docaudio/internal/metrics"
	"github.com/dgallion1/docaudio/internal/parser"
	"github.com/dgallion1/docaudio/internal/pipeline"
	"github.com/dgallion1/docaudio/internal/synth"
)

// newRunner wires the extractor, TTS client and merger into a pipeline
// runner. stats and m may be nil.
func newRunner(cfg config.Config, log *slog.Logger, stats *synth.Stats, m *metrics.Metrics) (*pipeline.Runner, *synth.Client) {
	client := synth.NewClient(synth.Options{
		URL:           cfg.TTS.URL,
		APIKey:        cfg.TTS.APIKey,
		Timeout:       cfg.TTS.Timeout,
		Extension:     cfg.TTS.AudioFormat,
		MaxAudioBytes: cfg.TTS.MaxAudioBytes,
		Stats:         stats,
	})
	runner := pipeline.NewRunner(
		parser.Extractor{FallbackPdftotext: cfg.PDFFallbackPdftotext},
		client,
		&audio.Merger{Logger: log},
		pipeline.Options{
			Concurrency:       cfg.Concurrency,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Retries:           cfg.Retries,
			RunTimeout:        cfg.RunTimeout,
			Logger:            log,
			Metrics:           m,
		},
	)
	return runner, client
}
