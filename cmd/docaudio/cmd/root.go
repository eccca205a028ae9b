package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgallion1/docaudio/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docaudio",
	Short: "Turn documents into narrated audiobooks",
	Long: `docaudio extracts the text of a PDF, DOCX, Markdown, HTML or text file,
splits it into overlapping chunks, sends each chunk to a text-to-speech
service and merges the returned audio into a single audiobook.

Commands:
  generate - convert one document from the command line
  serve    - run the HTTP job service
  chunk    - show how a document would be split, without synthesis`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// loadConfig reads the layered configuration; --verbose wins over log_level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
}
