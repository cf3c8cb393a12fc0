package entity

import "github.com/google/uuid"

// SelectionRequestMessage is the inbound message from the keyframe.selection queue.
// Threshold fields are optional and fall back to the service defaults.
type SelectionRequestMessage struct {
	JobID          uuid.UUID `json:"job_id"`
	UserID         string    `json:"user_id"`
	VideoKey       string    `json:"video_key"`
	FileSize       int64     `json:"file_size"`
	UserEmail      string    `json:"user_email"`
	EdgeThreshold  *float64  `json:"edge_threshold,omitempty"`
	FrameThreshold *int      `json:"frame_threshold,omitempty"`
	BaselinePolicy string    `json:"baseline_policy,omitempty"`
}

// SelectionStatusMessage is the outbound message published to the keyframe.status queue.
type SelectionStatusMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	Status          JobStatus `json:"status"`
	VideoKey        string    `json:"video_key"`
	ArchiveKey      string    `json:"archive_key,omitempty"`
	DecodedFrames   int       `json:"decoded_frames,omitempty"`
	CandidateFrames int       `json:"candidate_frames,omitempty"`
	SelectedFrames  int       `json:"selected_frames,omitempty"`
	Duration        float64   `json:"duration_seconds,omitempty"`
	EdgeThreshold   float64   `json:"edge_threshold"`
	FrameThreshold  int       `json:"frame_threshold"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
}
