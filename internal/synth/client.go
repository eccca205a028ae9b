// Package synth converts text chunks into audio files through a remote
// text-to-speech HTTP service.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultURL     = "http://127.0.0.1:8000/tts"
	DefaultTimeout = 180 * time.Second

	defaultMaxAudioBytes = 256 << 20
	maxErrorBody         = 4 << 10
)

// Options configure a Client.
type Options struct {
	URL           string        // Endpoint accepting {"text","lang"}
	APIKey        string        // Optional bearer token
	Timeout       time.Duration // Ceiling for one request, body included
	Extension     string        // File extension for stored audio, e.g. "mp3"
	MaxAudioBytes int64         // Larger responses are rejected
	HTTPClient    *http.Client  // Optional, for tests or custom transports
	Stats         *Stats        // Optional latency recorder
}

// Request is one chunk to synthesize.
type Request struct {
	Index    int
	Text     string
	Language string
	Dir      string // Directory the audio file is written to
}

// Artifact is the audio file produced for one chunk.
type Artifact struct {
	Index    int
	Path     string
	Size     int64
	Duration time.Duration // Request latency
}

// Client calls the TTS service. It is safe for concurrent use and never
// retries on its own.
type Client struct {
	url        string
	apiKey     string
	ext        string
	maxBytes   int64
	httpClient *http.Client
	stats      *Stats
}

func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Extension == "" {
		opts.Extension = "mp3"
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = defaultMaxAudioBytes
	}
	// Copy so a shared client keeps its own timeout.
	hc := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		hc = &c
	}
	hc.Timeout = opts.Timeout
	return &Client{
		url:        opts.URL,
		apiKey:     opts.APIKey,
		ext:        strings.TrimPrefix(opts.Extension, "."),
		maxBytes:   opts.MaxAudioBytes,
		httpClient: hc,
		stats:      opts.Stats,
	}
}

type ttsRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

var errEmptyAudio = errors.New("empty audio body")

// Synthesize sends one chunk to the service and stores the returned audio as
// chunk_<uuid>.<ext> in req.Dir. Every call writes a new file, so retries
// never overwrite an earlier attempt. Failures are *Error.
func (c *Client) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	fail := func(kind Kind, err error) (Artifact, error) {
		if c.stats != nil {
			c.stats.RecordFailure(kind)
		}
		return Artifact{}, &Error{Kind: kind, Index: req.Index, Err: err}
	}

	if strings.TrimSpace(req.Text) == "" {
		return fail(KindEmptyInput, nil)
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return fail(KindStorage, fmt.Errorf("create output dir: %w", err))
	}

	body, err := json.Marshal(ttsRequest{Text: req.Text, Lang: req.Language})
	if err != nil {
		return fail(KindUnknown, fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fail(KindTransport, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fail(classify(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if c.stats != nil {
			c.stats.RecordFailure(KindStatus)
		}
		return Artifact{}, &Error{
			Kind:       KindStatus,
			Index:      req.Index,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return fail(classify(err), fmt.Errorf("read audio: %w", err))
	}
	if int64(len(audio)) > c.maxBytes {
		return fail(KindTransport, fmt.Errorf("audio response exceeds %d bytes", c.maxBytes))
	}
	if len(audio) == 0 {
		if c.stats != nil {
			c.stats.RecordFailure(KindStatus)
		}
		return Artifact{}, &Error{Kind: KindStatus, Index: req.Index, StatusCode: resp.StatusCode, Err: errEmptyAudio}
	}
	elapsed := time.Since(started)

	path := filepath.Join(req.Dir, fmt.Sprintf("chunk_%s.%s", uuid.NewString(), c.ext))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		os.Remove(path)
		return fail(KindStorage, fmt.Errorf("write audio: %w", err))
	}

	if c.stats != nil {
		c.stats.Record(elapsed)
	}
	return Artifact{
		Index:    req.Index,
		Path:     path,
		Size:     int64(len(audio)),
		Duration: elapsed,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
