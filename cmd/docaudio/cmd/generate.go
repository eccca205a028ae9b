package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/docaudio/internal/audio"
	"github.com/dgallion1/docaudio/internal/config"
	"github.com/dgallion1/docaudio/internal/parser"
	"github.com/dgallion1/docaudio/internal/pipeline"
	"github.com/spf13/cobra"
)

var genFlags struct {
	input      string
	outputFile string
	outputDir  string
	tempDir    string
	language   string
	chunkSize  int
	overlap    int
	keepTemp   bool
	concurrent int
	retries    int
	rps        float64
	timeout    time.Duration
	runTimeout time.Duration
	format     string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Convert a document into an audiobook",
	Long: `Convert a document into a single audiobook file.

Chunks the TTS service fails on are skipped; the audiobook is still written
from the remaining chunks and the command exits 0. Only a run that produces
no audiobook at all exits non-zero.

Examples:
  docaudio generate -p book.pdf
  docaudio generate -p notes.md -o notes.wav --format wav -l de
  docaudio generate -p report.docx --concurrency 4 --retries 2`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.StringVarP(&genFlags.input, "input", "p", "", "Document to convert (pdf, docx, md, html, txt)")
	f.StringVarP(&genFlags.outputFile, "output-file", "o", "audiobook.mp3", "Output file name")
	f.StringVarP(&genFlags.outputDir, "output-dir", "d", ".", "Directory for the output file")
	f.StringVarP(&genFlags.tempDir, "temp-dir", "t", "temp_audio_chunks", "Directory for per-chunk audio")
	f.StringVarP(&genFlags.language, "language", "l", "en", "Language code sent to the TTS service")
	f.IntVarP(&genFlags.chunkSize, "chunk-size", "c", 2000, "Maximum characters per chunk")
	f.IntVar(&genFlags.overlap, "overlap", 0, "Characters repeated between chunks (default 10% of chunk size)")
	f.BoolVar(&genFlags.keepTemp, "keep-temp-files", false, "Keep per-chunk audio files")
	f.IntVar(&genFlags.concurrent, "concurrency", 1, "Parallel TTS requests")
	f.IntVar(&genFlags.retries, "retries", 0, "Extra attempts for timeouts, 429 and 5xx responses")
	f.Float64Var(&genFlags.rps, "rps", 0, "Maximum TTS requests per second (0 = unlimited)")
	f.DurationVar(&genFlags.timeout, "timeout", 180*time.Second, "Timeout for one TTS request")
	f.DurationVar(&genFlags.runTimeout, "run-timeout", 0, "Deadline for the whole synthesis phase (0 = none)")
	f.StringVar(&genFlags.format, "format", "", "Output format mp3|wav (default from the output file extension)")
	_ = generateCmd.MarkFlagRequired("input")
}

// applyGenerateFlags overlays explicitly set flags on the loaded config.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("output-file") {
		cfg.OutputFile = genFlags.outputFile
	}
	if f.Changed("output-dir") {
		cfg.OutputDir = genFlags.outputDir
	}
	if f.Changed("temp-dir") {
		cfg.WorkDir = genFlags.tempDir
	}
	if f.Changed("language") {
		cfg.TTS.Language = genFlags.language
	}
	if f.Changed("chunk-size") {
		cfg.ChunkSize = genFlags.chunkSize
	}
	if f.Changed("overlap") {
		cfg.ChunkOverlap = genFlags.overlap
	}
	if f.Changed("keep-temp-files") {
		cfg.KeepTempFiles = genFlags.keepTemp
	}
	if f.Changed("concurrency") {
		cfg.Concurrency = genFlags.concurrent
	}
	if f.Changed("retries") {
		cfg.Retries = genFlags.retries
	}
	if f.Changed("rps") {
		cfg.RequestsPerSecond = genFlags.rps
	}
	if f.Changed("timeout") {
		cfg.TTS.Timeout = genFlags.timeout
	}
	if f.Changed("run-timeout") {
		cfg.RunTimeout = genFlags.runTimeout
	}
	switch {
	case f.Changed("format"):
		cfg.OutputFormat = strings.ToLower(genFlags.format)
	case f.Changed("output-file"):
		if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(cfg.OutputFile), ".")); ext == "mp3" || ext == "wav" {
			cfg.OutputFormat = ext
		}
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyGenerateFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ChunkSize <= 0 || cfg.Concurrency <= 0 || cfg.Retries < 0 || cfg.RequestsPerSecond < 0 {
		return errors.New("chunk-size and concurrency must be positive, retries and rps non-negative")
	}
	if !parser.IsSupportedExtension(genFlags.input) {
		return fmt.Errorf("unsupported input type %q", filepath.Ext(genFlags.input))
	}
	format, err := audio.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	runner, client := newRunner(cfg, log, nil, nil)
	defer client.Close()

	job := pipeline.NewJob(genFlags.input, cfg.OutputPath(), cfg.WorkDir, pipeline.Settings{
		Language:      cfg.TTS.Language,
		ChunkSize:     cfg.ChunkSize,
		ChunkOverlap:  cfg.Overlap(),
		Format:        format,
		KeepTempFiles: cfg.KeepTempFiles,
	})
	job.Filename = filepath.Base(genFlags.input)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := runner.Process(ctx, job)
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func printOutcome(out *pipeline.Outcome) {
	if out.Degraded() {
		fmt.Println(warnStyle.Render("Audiobook written with missing chunks:"), out.OutputPath)
	} else {
		fmt.Println(okStyle.Render("Audiobook written:"), out.OutputPath)
	}
	fmt.Printf("  chunks:   %d total, %d synthesized, %d failed\n", out.TotalChunks, len(out.Succeeded), len(out.Failed)+len(out.Dropped))
	fmt.Printf("  size:     %s\n", humanBytes(out.Bytes))
	fmt.Printf("  length:   %s\n", out.Duration.Round(time.Second))

	for _, f := range out.Failed {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("  chunk %d: %s: %v", f.Index, f.Kind, f.Err)))
	}
	for _, i := range out.Dropped {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("  chunk %d: audio could not be merged", i)))
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
