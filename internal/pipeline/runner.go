package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/dgallion1/docaudio/internal/audio"
	"github.com/dgallion1/docaudio/internal/chunker"
	"github.com/dgallion1/docaudio/internal/metrics"
	"github.com/dgallion1/docaudio/internal/synth"
)

// Fatal run errors. Everything else is a per-chunk failure recorded in the
// Outcome.
var (
	ErrExtract   = errors.New("text extraction failed")
	ErrNoText    = errors.New("no text extracted")
	ErrNoChunks  = errors.New("no chunks produced")
	ErrWorkspace = errors.New("workspace unavailable")
	ErrNoAudio   = errors.New("no audio chunks were generated")
	ErrMerge     = errors.New("merging audio failed")
	ErrCanceled  = errors.New("run canceled")
)

// Extractor turns an input file into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Synthesizer turns one chunk into an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (synth.Artifact, error)
}

// Merger concatenates audio clips into one file.
type Merger interface {
	Merge(w io.WriteSeeker, blobs [][]byte, out audio.Format) (*audio.Result, error)
}

// Options tune synthesis dispatch.
type Options struct {
	Concurrency       int           // Parallel synthesis requests, default 1
	RequestsPerSecond float64       // 0 means unlimited
	Retries           int           // Extra attempts for retryable failures
	Backoff           func(int) time.Duration
	RunTimeout        time.Duration // 0 means no deadline for the synthesis phase
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
}

// ChunkFailure records why one chunk has no audio.
type ChunkFailure struct {
	Index int
	Kind  synth.Kind
	Err   error
}

// Outcome summarizes a run that produced an output file.
type Outcome struct {
	OutputPath  string
	TotalChunks int
	Succeeded   []int          // Chunk indices present in the output, ascending
	Failed      []ChunkFailure // Ascending by index
	Dropped     []int          // Synthesized but rejected by the merger
	Bytes       int64
	Duration    time.Duration
}

// Degraded reports whether some chunks are missing from the output.
func (o *Outcome) Degraded() bool {
	return len(o.Failed) > 0 || len(o.Dropped) > 0
}

// Runner executes the extract, chunk, synthesize and merge stages for a job.
// It is safe for concurrent use; the request rate limit is shared.
type Runner struct {
	extract Extractor
	synth   Synthesizer
	merge   Merger
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewRunner(e Extractor, s Synthesizer, m Merger, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = Backoff
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Runner{extract: e, synth: s, merge: m, opts: opts, log: log}
	if opts.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return r
}

type chunkResult struct {
	art synth.Artifact
	err error
	idx int
}

// Process runs the full pipeline for a job. A nil error means an output file
// was written; Outcome.Degraded tells whether chunks are missing from it.
func (r *Runner) Process(ctx context.Context, job *Job) (*Outcome, error) {
	log := r.log.With("job_id", job.ID, "input", job.InputPath)
	s := job.Settings

	fail := func(phase string, err error) (*Outcome, error) {
		log.Error("run failed", "phase", phase, "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, phase)
		r.opts.Metrics.RunFinished(string(StatusFailed))
		return nil, err
	}

	// Phase 1: Extract
	job.SetStatus(StatusExtracting, "extracting text")
	text, err := r.extract.Extract(job.InputPath)
	if err != nil {
		return fail("extracting", fmt.Errorf("%w: %w", ErrExtract, err))
	}
	if strings.TrimSpace(text) == "" {
		return fail("extracting", ErrNoText)
	}
	log.Info("extracted text", "chars", utf8.RuneCountInString(text))

	// Phase 2: Chunk, in full, before any synthesis.
	job.SetStatus(StatusChunking, "splitting into chunks")
	chunks := chunker.Split(text, s.ChunkSize, s.ChunkOverlap)
	if len(chunks) == 0 {
		return fail("chunking", ErrNoChunks)
	}
	estimate := chunker.EstimateChunks(chunks)
	job.SetTotalChunks(len(chunks), estimate)
	log.Info("chunked text", "chunks", len(chunks), "chunk_size", s.ChunkSize, "overlap", s.ChunkOverlap, "estimated_audio", estimate.Round(time.Second))

	ws, err := OpenWorkspace(job.WorkDir, s.KeepTempFiles)
	if err != nil {
		return fail("workspace", fmt.Errorf("%w: %w", ErrWorkspace, err))
	}
	defer ws.Close(log)

	// Phase 3: Synthesize
	job.SetStatus(StatusSynthesizing, "synthesizing audio")
	arts, failures, err := r.synthesizeAll(ctx, job, ws, chunks, log)
	if err != nil {
		return fail("synthesizing", err)
	}
	if len(arts) == 0 {
		return fail("synthesizing", fmt.Errorf("%w: %d of %d chunks failed", ErrNoAudio, len(failures), len(chunks)))
	}

	// Phase 4: Merge, in chunk order regardless of completion order.
	job.SetStatus(StatusMerging, "merging audio")
	out, unread, err := r.mergeArtifacts(job, arts, log)
	if err != nil {
		if errors.Is(err, ErrNoAudio) {
			return fail("merging", err)
		}
		return fail("merging", fmt.Errorf("%w: %w", ErrMerge, err))
	}
	out.TotalChunks = len(chunks)
	out.Failed = append(failures, unread...)
	sort.Slice(out.Failed, func(a, b int) bool { return out.Failed[a].Index < out.Failed[b].Index })

	job.SetOutputBytes(out.Bytes)
	r.opts.Metrics.AddOutputBytes(out.Bytes)
	if out.Degraded() {
		job.SetStatus(StatusPartial, "done")
		r.opts.Metrics.RunFinished(string(StatusPartial))
		log.Warn("audiobook created with missing chunks",
			"output", out.OutputPath, "succeeded", len(out.Succeeded), "failed", len(out.Failed),
			"dropped", len(out.Dropped), "total", len(chunks))
	} else {
		job.SetStatus(StatusCompleted, "done")
		r.opts.Metrics.RunFinished(string(StatusCompleted))
		log.Info("audiobook created", "output", out.OutputPath, "chunks", len(chunks),
			"bytes", out.Bytes, "duration", out.Duration.Round(time.Second))
	}
	return out, nil
}

// synthesizeAll sends every chunk through the bounded dispatcher and returns
// the successful artifacts keyed by chunk index. A run deadline turns
// undispatched chunks into timeout failures; cancellation of ctx is fatal.
func (r *Runner) synthesizeAll(ctx context.Context, job *Job, ws *Workspace, chunks []chunker.Chunk, log *slog.Logger) (map[int]synth.Artifact, []ChunkFailure, error) {
	runCtx := ctx
	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	results := make(chan chunkResult, len(chunks))
	sem := make(chan struct{}, r.opts.Concurrency)

	dispatched := 0
dispatch:
	for _, c := range chunks {
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			break dispatch
		}
		if runCtx.Err() != nil {
			<-sem
			break
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(runCtx); err != nil {
				<-sem
				break
			}
		}
		dispatched++
		go func(c chunker.Chunk) {
			defer func() { <-sem }()
			art, err := r.synthesizeChunk(runCtx, job, ws, c, log)
			results <- chunkResult{art: art, err: err, idx: c.Index}
		}(c)
	}

	arts := make(map[int]synth.Artifact, dispatched)
	var failures []ChunkFailure
	for range dispatched {
		res := <-results
		job.RecordChunk(res.err == nil)
		if res.err == nil {
			arts[res.idx] = res.art
			r.opts.Metrics.ChunkDone("ok", res.art.Duration)
			log.Debug("chunk synthesized", "chunk", res.idx, "bytes", res.art.Size, "latency", res.art.Duration)
			continue
		}
		kind := synth.KindOf(res.err)
		failures = append(failures, ChunkFailure{Index: res.idx, Kind: kind, Err: res.err})
		r.opts.Metrics.ChunkDone(kind.String(), 0)
		job.AddError(res.err.Error())
		if kind == synth.KindStorage {
			log.Error("chunk audio could not be stored", "chunk", res.idx, "error", res.err)
		} else {
			log.Warn("chunk synthesis failed, skipping", "chunk", res.idx, "kind", kind, "error", res.err)
		}
	}

	if ctx.Err() != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}

	for _, c := range chunks[dispatched:] {
		err := &synth.Error{Kind: synth.KindTimeout, Index: c.Index, Err: runCtx.Err()}
		failures = append(failures, ChunkFailure{Index: c.Index, Kind: synth.KindTimeout, Err: err})
		job.RecordChunk(false)
		r.opts.Metrics.ChunkDone(synth.KindTimeout.String(), 0)
	}
	if n := len(chunks) - dispatched; n > 0 {
		job.AddError(fmt.Sprintf("run deadline reached, %d chunks not sent", n))
		log.Warn("run deadline reached before all chunks were sent", "not_sent", n, "run_timeout", r.opts.RunTimeout)
	}

	sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
	return arts, failures, nil
}

// synthesizeChunk makes up to 1+Retries attempts for one chunk.
func (r *Runner) synthesizeChunk(ctx context.Context, job *Job, ws *Workspace, c chunker.Chunk, log *slog.Logger) (synth.Artifact, error) {
	req := synth.Request{Index: c.Index, Text: c.Content, Language: job.Settings.Language, Dir: ws.Dir()}
	for attempt := 0; ; attempt++ {
		r.opts.Metrics.SynthStarted()
		art, err := r.synth.Synthesize(ctx, req)
		r.opts.Metrics.SynthFinished()
		if err == nil {
			ws.Track(art.Path)
			return art, nil
		}
		if attempt >= r.opts.Retries || !synth.IsRetryable(err) {
			return synth.Artifact{}, err
		}
		wait := r.opts.Backoff(attempt)
		log.Warn("retryable synthesis error", "chunk", c.Index, "attempt", attempt+1, "retry_in", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return synth.Artifact{}, &synth.Error{Kind: synth.KindOf(ctx.Err()), Index: c.Index, Err: ctx.Err()}
		}
	}
}

// mergeArtifacts reads the successful chunk files in ascending index order and
// writes the merged audiobook atomically. Chunk files that cannot be read back
// are returned as failures.
func (r *Runner) mergeArtifacts(job *Job, arts map[int]synth.Artifact, log *slog.Logger) (*Outcome, []ChunkFailure, error) {
	indices := make([]int, 0, len(arts))
	for i := range arts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := &Outcome{OutputPath: job.OutputPath}
	var unread []ChunkFailure
	blobs := make([][]byte, 0, len(indices))
	order := make([]int, 0, len(indices))
	for _, i := range indices {
		data, err := os.ReadFile(arts[i].Path)
		if err != nil {
			log.Error("read chunk audio", "chunk", i, "path", arts[i].Path, "error", err)
			unread = append(unread, ChunkFailure{Index: i, Kind: synth.KindStorage, Err: err})
			continue
		}
		blobs = append(blobs, data)
		order = append(order, i)
	}
	if len(blobs) == 0 {
		return nil, nil, fmt.Errorf("%w: chunk files unreadable", ErrNoAudio)
	}

	if dir := filepath.Dir(job.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp := job.OutputPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	res, err := r.merge.Merge(f, blobs, job.Settings.Format)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, nil, err
	}
	if err := os.Rename(tmp, job.OutputPath); err != nil {
		os.Remove(tmp)
		return nil, nil, fmt.Errorf("finalize output: %w", err)
	}

	dropped := make(map[int]bool, len(res.Skipped))
	for _, pos := range res.Skipped {
		dropped[order[pos]] = true
		out.Dropped = append(out.Dropped, order[pos])
	}
	for _, i := range order {
		if !dropped[i] {
			out.Succeeded = append(out.Succeeded, i)
		}
	}
	out.Bytes = res.Bytes
	out.Duration = res.Duration
	return out, unread, nil
}
