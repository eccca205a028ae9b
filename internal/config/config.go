package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Logging
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"` // json|text

	// Service mode
	Port   string `yaml:"port" env:"PORT"`
	APIKey string `yaml:"api_key" env:"DOCAUDIO_API_KEY"`

	// Text-to-speech service
	TTS TTSConfig `yaml:"tts"`

	// Chunking defaults. A negative overlap means "10% of chunk size".
	ChunkSize    int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`

	// Filesystem layout
	WorkDir       string `yaml:"work_dir" env:"WORK_DIR"`
	OutputDir     string `yaml:"output_dir" env:"OUTPUT_DIR"`
	OutputFile    string `yaml:"output_file" env:"OUTPUT_FILE"`
	OutputFormat  string `yaml:"output_format" env:"OUTPUT_FORMAT"` // mp3|wav
	KeepTempFiles bool   `yaml:"keep_temp_files" env:"KEEP_TEMP_FILES"`

	// Synthesis dispatch
	Concurrency       int           `yaml:"concurrency" env:"SYNTH_CONCURRENCY"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"SYNTH_RPS"`
	Retries           int           `yaml:"retries" env:"SYNTH_RETRIES"`
	RunTimeout        time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`

	// Job service worker pool
	WorkerCount    int           `yaml:"worker_count" env:"WORKER_COUNT"`
	MaxQueueSize   int           `yaml:"max_queue_size" env:"MAX_QUEUE_SIZE"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	JobTTL         time.Duration `yaml:"job_ttl" env:"JOB_TTL"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext" env:"PDF_FALLBACK_PDFTOTEXT"`
}

// TTSConfig describes the remote speech synthesis endpoint.
type TTSConfig struct {
	URL           string        `yaml:"url" env:"TTS_API_URL"`
	APIKey        string        `yaml:"api_key" env:"TTS_API_KEY"`
	Language      string        `yaml:"language" env:"TTS_LANGUAGE"`
	Timeout       time.Duration `yaml:"timeout" env:"TTS_TIMEOUT"`
	AudioFormat   string        `yaml:"audio_format" env:"TTS_AUDIO_FORMAT"` // what the service returns
	MaxAudioBytes int64         `yaml:"max_audio_bytes" env:"TTS_MAX_AUDIO_BYTES"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",

		Port: "8090",

		TTS: TTSConfig{
			URL:           "http://127.0.0.1:8000/tts",
			Language:      "en",
			Timeout:       180 * time.Second,
			AudioFormat:   "mp3",
			MaxAudioBytes: 256 << 20,
		},

		ChunkSize:    2000,
		ChunkOverlap: -1,

		WorkDir:      "temp_audio_chunks",
		OutputDir:    ".",
		OutputFile:   "audiobook.mp3",
		OutputFormat: "mp3",

		Concurrency: 1,

		WorkerCount:    2,
		MaxQueueSize:   20,
		MaxUploadBytes: 52428800, // 50MB
		JobTTL:         1 * time.Hour,

		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory and the process environment, in that order.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	// Older deployments point at a Kokoro server under its own name.
	if _, ok := os.LookupEnv("TTS_API_URL"); !ok {
		if u := os.Getenv("KOKORO_API_URL"); u != "" {
			cfg.TTS.URL = u
		}
	}

	cfg.normalize()
	return cfg, nil
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	def := Defaults()
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = def.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = def.JobTTL
	}
	if c.TTS.Timeout <= 0 {
		c.TTS.Timeout = def.TTS.Timeout
	}
	if c.TTS.MaxAudioBytes <= 0 {
		c.TTS.MaxAudioBytes = def.TTS.MaxAudioBytes
	}
	c.OutputFormat = strings.ToLower(strings.TrimSpace(c.OutputFormat))
	c.TTS.AudioFormat = strings.ToLower(strings.TrimSpace(c.TTS.AudioFormat))
}

// Overlap resolves the effective chunk overlap.
func (c Config) Overlap() int {
	if c.ChunkOverlap < 0 {
		return c.ChunkSize / 10
	}
	return c.ChunkOverlap
}

// OutputPath is where the merged audiobook is written in CLI mode.
func (c Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputFile)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.TTS.URL) == "" {
		return errors.New("tts.url (TTS_API_URL) is required")
	}
	if !strings.HasPrefix(c.TTS.URL, "http://") && !strings.HasPrefix(c.TTS.URL, "https://") {
		return fmt.Errorf("tts.url must be an http(s) URL, got %q", c.TTS.URL)
	}
	switch c.OutputFormat {
	case "mp3", "wav":
	default:
		return fmt.Errorf("output_format must be one of mp3|wav, got %q", c.OutputFormat)
	}
	switch c.TTS.AudioFormat {
	case "mp3", "wav":
	default:
		return fmt.Errorf("tts.audio_format must be one of mp3|wav, got %q", c.TTS.AudioFormat)
	}
	if c.TTS.AudioFormat == "wav" && c.OutputFormat == "mp3" {
		return errors.New("tts.audio_format wav cannot be merged into mp3 output; set output_format to wav")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be one of json|text, got %q", c.LogFormat)
	}
	if c.WorkDir == "" {
		return errors.New("work_dir must not be empty")
	}
	if c.OutputFile == "" {
		return errors.New("output_file must not be empty")
	}
	return nil
}
