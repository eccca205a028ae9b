package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/docaudio/internal/audio"
)

// JobStatus represents the state of an audiobook run.
type JobStatus string

const (
	StatusQueued       JobStatus = "queued"
	StatusExtracting   JobStatus = "extracting"
	StatusChunking     JobStatus = "chunking"
	StatusSynthesizing JobStatus = "synthesizing"
	StatusMerging      JobStatus = "merging"
	StatusCompleted    JobStatus = "completed"
	StatusPartial      JobStatus = "partial" // completed, some chunks missing
	StatusFailed       JobStatus = "failed"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// HasAudio reports whether a finished job produced an output file.
func (s JobStatus) HasAudio() bool {
	return s == StatusCompleted || s == StatusPartial
}

// Settings are the per-run knobs.
type Settings struct {
	Language      string       `json:"language"`
	ChunkSize     int          `json:"chunk_size"`
	ChunkOverlap  int          `json:"chunk_overlap"`
	Format        audio.Format `json:"format"`
	KeepTempFiles bool         `json:"keep_temp_files"`
}

// Job tracks the state of a single document-to-audio run.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`
	Title    string `json:"title"`

	InputPath  string `json:"-"`
	OutputPath string `json:"-"`
	WorkDir    string `json:"-"` // holds per-chunk audio while running
	Root       string `json:"-"` // service mode: directory owned by the job, removed on delete

	Settings Settings `json:"settings"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`

	SourceHash string    `json:"source_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	outputBytes int64
	errors      []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	ChunksSucceeded int      `json:"chunks_succeeded"`
	ChunksFailed    int      `json:"chunks_failed"`
	EstimatedAudio  string   `json:"estimated_audio,omitempty"`
	Errors          []string `json:"errors"`
}

// NewJob returns a queued job with a fresh ID.
func NewJob(inputPath, outputPath, workDir string, s Settings) *Job {
	now := time.Now()
	return &Job{
		ID:         generateULID(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		WorkDir:    workDir,
		Settings:   s,
		Status:     StatusQueued,
		Phase:      "queued",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// RecordChunk counts one finished chunk.
func (j *Job) RecordChunk(ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksProcessed++
	if ok {
		j.Progress.ChunksSucceeded++
	} else {
		j.Progress.ChunksFailed++
	}
	j.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count and the narration estimate.
func (j *Job) SetTotalChunks(n int, estimate time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	if estimate > 0 {
		j.Progress.EstimatedAudio = estimate.Round(time.Second).String()
	}
	j.UpdatedAt = time.Now()
}

// SetOutputBytes records the size of the merged file.
func (j *Job) SetOutputBytes(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outputBytes = n
}

// State returns the status and output path under the lock.
func (j *Job) State() (JobStatus, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status, j.OutputPath
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Settings    Settings  `json:"settings"`
	Progress    Progress  `json:"progress"`
	SourceHash  string    `json:"source_hash,omitempty"`
	OutputBytes int64     `json:"output_bytes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		Title:       j.Title,
		Status:      j.Status,
		Phase:       j.Phase,
		Settings:    j.Settings,
		Progress:    p,
		SourceHash:  j.SourceHash,
		OutputBytes: j.outputBytes,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Delete forgets a job and returns it, or nil if unknown.
func (s *JobStore) Delete(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	delete(s.jobs, id)
	return job
}

// List returns snapshots of all jobs, oldest first.
func (s *JobStore) List() []JobSnapshot {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Cleanup removes finished jobs idle longer than the TTL and returns them so
// the caller can release their files.
func (s *JobStore) Cleanup() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var evicted []*Job
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			evicted = append(evicted, job)
		}
	}
	return evicted
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
