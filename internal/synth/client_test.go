package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSynthesize_WritesAudioFile(t *testing.T) {
	audio := []byte("ID3-fake-mp3-bytes")
	var got ttsRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer srv.Close()

	stats := NewStats(time.Hour)
	c := NewClient(Options{URL: srv.URL, APIKey: "secret", Stats: stats})
	defer c.Close()

	dir := filepath.Join(t.TempDir(), "work")
	art, err := c.Synthesize(context.Background(), Request{Index: 3, Text: "Hello there.", Language: "en", Dir: dir})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if got.Text != "Hello there." || got.Lang != "en" {
		t.Errorf("unexpected payload %+v", got)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if art.Index != 3 || art.Size != int64(len(audio)) {
		t.Errorf("unexpected artifact %+v", art)
	}
	if filepath.Dir(art.Path) != dir {
		t.Errorf("artifact %s not in %s", art.Path, dir)
	}
	base := filepath.Base(art.Path)
	if !strings.HasPrefix(base, "chunk_") || !strings.HasSuffix(base, ".mp3") {
		t.Errorf("unexpected file name %q", base)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(data, audio) {
		t.Errorf("artifact content mismatch")
	}
	if stats.Snapshot().Count != 1 {
		t.Errorf("expected latency to be recorded")
	}
}

func TestSynthesize_UniqueFilePerAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	c := NewClient(Options{URL: srv.URL, Extension: "wav"})
	dir := t.TempDir()
	req := Request{Index: 0, Text: "same chunk", Dir: dir}
	a, err := c.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Path == b.Path {
		t.Fatalf("expected distinct files, both are %s", a.Path)
	}
	if filepath.Ext(a.Path) != ".wav" {
		t.Errorf("expected .wav extension, got %s", a.Path)
	}
}

func TestSynthesize_EmptyInputSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(Options{URL: srv.URL})
	_, err := c.Synthesize(context.Background(), Request{Index: 1, Text: " \n\t", Dir: t.TempDir()})
	if KindOf(err) != KindEmptyInput {
		t.Fatalf("expected empty input, got %v", err)
	}
	if called {
		t.Error("service should not be called for blank text")
	}
}

func TestSynthesize_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Options{URL: srv.URL})
	dir := t.TempDir()
	_, err := c.Synthesize(context.Background(), Request{Index: 2, Text: "hi", Dir: dir})

	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if se.Kind != KindStatus || se.StatusCode != http.StatusBadRequest || se.Index != 2 {
		t.Errorf("unexpected error %+v", se)
	}
	if se.Body != "voice not found" {
		t.Errorf("expected body captured, got %q", se.Body)
	}
	if se.Retryable() {
		t.Error("400 should not be retryable")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no file written on failure, found %d", len(entries))
	}
}

func TestSynthesize_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Options{URL: srv.URL}).Synthesize(context.Background(), Request{Text: "hi", Dir: t.TempDir()})
	if !IsRetryable(err) {
		t.Fatalf("expected 503 to be retryable, got %v", err)
	}
}

func TestSynthesize_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(Options{URL: srv.URL}).Synthesize(context.Background(), Request{Text: "hi", Dir: t.TempDir()})
	if KindOf(err) != KindStatus {
		t.Fatalf("expected status kind for empty audio, got %v", err)
	}
}

func TestSynthesize_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{URL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Synthesize(context.Background(), Request{Text: "slow", Dir: t.TempDir()})
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestSynthesize_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := NewClient(Options{URL: srv.URL}).Synthesize(ctx, Request{Text: "x", Dir: t.TempDir()})
	if KindOf(err) != KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestSynthesize_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(Options{URL: url}).Synthesize(context.Background(), Request{Text: "x", Dir: t.TempDir()})
	if KindOf(err) != KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSynthesize_StorageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewClient(Options{URL: srv.URL}).Synthesize(context.Background(), Request{Text: "x", Dir: filepath.Join(blocker, "sub")})
	if KindOf(err) != KindStorage {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestKindOf_ForeignErrors(t *testing.T) {
	if KindOf(context.DeadlineExceeded) != KindTimeout {
		t.Error("deadline should classify as timeout")
	}
	if KindOf(context.Canceled) != KindCanceled {
		t.Error("cancel should classify as canceled")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("nil should be unknown")
	}
	if got, _ := KindStorage.MarshalText(); string(got) != "storage" {
		t.Errorf("MarshalText = %q", got)
	}
}

func TestNewClient_LeavesSharedClientTimeout(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := NewClient(Options{URL: "http://127.0.0.1:1/tts", Timeout: 5 * time.Second, HTTPClient: shared})
	if shared.Timeout != time.Minute {
		t.Errorf("shared client timeout changed to %s", shared.Timeout)
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("expected client timeout 5s, got %s", c.httpClient.Timeout)
	}
}

func TestStatusErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("é", 300)
	err := &Error{Kind: KindStatus, Index: 1, StatusCode: 500, Body: body}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8: %q", msg)
	}
	if !strings.HasSuffix(msg, strings.Repeat("é", 200)+"...") {
		t.Errorf("expected 200 runes then an ellipsis, got %q", msg)
	}
}
