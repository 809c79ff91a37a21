package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrestor94/pliegos-ai/internal/parser"
)

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracting JobStatus = "extracting"
	StatusAnalyzing  JobStatus = "analyzing"
	StatusRendering  JobStatus = "rendering"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job tracks one submitted set of tender files.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	Name  string `json:"name"`
	Title string `json:"title"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Files  []string  `json:"files"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	sources []parser.SourceFile
	outcome *Outcome
	errors  []string
}

// Progress tracks processing progress.
type Progress struct {
	FilesTotal     int      `json:"files_total"`
	FilesExtracted int      `json:"files_extracted"`
	Errors         []string `json:"errors"`
}

// NewJob registers the uploaded files under a fresh id.
func NewJob(name, title string, files []parser.SourceFile) *Job {
	now := time.Now()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Title:     title,
		Status:    StatusQueued,
		Phase:     "queued",
		Files:     names,
		Progress:  Progress{FilesTotal: len(files)},
		CreatedAt: now,
		UpdatedAt: now,
		sources:   files,
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

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
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

// IncrFilesExtracted atomically increments the extracted file count.
func (j *Job) IncrFilesExtracted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FilesExtracted++
	j.UpdatedAt = time.Now()
}

// Sources returns the uploaded files.
func (j *Job) Sources() []parser.SourceFile {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sources
}

// Finish stores the outcome, releases the uploaded bytes and sets the final
// status.
func (j *Job) Finish(out *Outcome, status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcome = out
	j.sources = nil
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// Outcome returns the finished run, or nil while the job is pending.
func (j *Job) Outcome() *Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Files     []string  `json:"files"`
	Progress  Progress  `json:"progress"`
	Result    *Outcome  `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	var result *Outcome
	if j.outcome != nil {
		o := *j.outcome
		result = &o
	}
	return JobSnapshot{
		ID:     j.ID,
		Name:   j.Name,
		Title:  j.Title,
		Status: j.Status,
		Phase:  j.Phase,
		Files:  append([]string(nil), j.Files...),
		Progress: Progress{
			FilesTotal:     j.Progress.FilesTotal,
			FilesExtracted: j.Progress.FilesExtracted,
			Errors:         errs,
		},
		Result:    result,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
