package models

import "time"

// BackgroundJob is a persisted long-running task with checkpointed resume.
type BackgroundJob struct {
	ID          string    `json:"id"`
	AccountEmail string   `json:"accountEmail,omitempty"`
	Instruction string    `json:"instruction"`
	Status      string    `json:"status"`
	Result      JSONMap   `json:"result,omitempty"`
	ErrorMsg    string    `json:"error,omitempty"`

	Resumable        bool    `json:"resumable"`
	ResumeCheckpoint JSONMap `json:"resumeCheckpoint,omitempty"`
	RetryCount       int     `json:"retryCount"`
	MaxRetries       int     `json:"maxRetries"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
