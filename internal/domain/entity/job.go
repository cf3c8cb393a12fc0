package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// SelectionParams are the thresholds a job was run with.
type SelectionParams struct {
	EdgeThreshold  float64
	FrameThreshold int
	BaselinePolicy string
}

// SelectionSummary counts the frames that survived each stage.
type SelectionSummary struct {
	DecodedFrames   int
	CandidateFrames int
	SelectedFrames  int
	VideoDuration   float64
}

type Job struct {
	ID              uuid.UUID
	UserID          string
	VideoKey        string
	ArchiveKey      string
	Status          JobStatus
	Params          SelectionParams
	DecodedFrames   int
	CandidateFrames int
	SelectedFrames  int
	FileSize        int64
	VideoDuration   float64
	Attempt         int
	MaxAttempts     int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewJob(userID, videoKey string, fileSize int64, params SelectionParams, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Params:      params,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(archiveKey string, summary SelectionSummary) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArchiveKey = archiveKey
	j.DecodedFrames = summary.DecodedFrames
	j.CandidateFrames = summary.CandidateFrames
	j.SelectedFrames = summary.SelectedFrames
	j.VideoDuration = summary.VideoDuration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// ExhaustRetries makes the failure permanent regardless of remaining attempts.
func (j *Job) ExhaustRetries() {
	j.Attempt = j.MaxAttempts
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
