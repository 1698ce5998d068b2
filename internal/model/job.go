package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	StateQueued      JobState = "queued"
	StateDownloading JobState = "downloading"
	StateDownloaded  JobState = "downloaded"
	StateUploading   JobState = "uploading"
	StateDone        JobState = "done"
	StateError       JobState = "error"
	StateCancelled   JobState = "cancelled"
)

// IsTerminal reports whether no further transition is expected outside of
// startup reconciliation.
func (s JobState) IsTerminal() bool {
	return s == StateDone || s == StateError || s == StateCancelled
}

// IsActive reports whether a worker is moving bytes for the job.
func (s JobState) IsActive() bool {
	return s == StateDownloading || s == StateUploading
}

type JobKind string

const (
	KindUpload   JobKind = "upload"
	KindDownload JobKind = "download"
)

const LocalSourcePrefix = "local:"

type Job struct {
	ID            string   `json:"id"`
	SourceRef     string   `json:"fileUrl"`
	Kind          JobKind  `json:"type"`
	State         JobState `json:"status"`
	Percent       int      `json:"percent"`
	Message       string   `json:"message,omitempty"`
	LocalPath     string   `json:"tmpPath,omitempty"`
	RequestedName string   `json:"requestedName,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
}

func NewJob(sourceRef string, kind JobKind) Job {
	return Job{
		ID:        NewJobID(),
		SourceRef: sourceRef,
		Kind:      kind,
		State:     StateQueued,
		CreatedAt: time.Now().UnixMilli(),
	}
}

func NewJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("job_%d", time.Now().UnixNano())
	}

	return "job_" + id.String()
}

var transitions = map[JobState][]JobState{
	StateQueued:      {StateDownloading, StateUploading},
	StateDownloading: {StateDownloaded},
	StateDownloaded:  {StateDone, StateUploading},
	StateUploading:   {StateDone},
}

// CanTransition reports whether from -> to is a legal forward move. Any
// non-terminal state may fall into error or cancelled.
func CanTransition(from, to JobState) bool {
	if from.IsTerminal() {
		return false
	}

	if to == StateError || to == StateCancelled {
		return true
	}

	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}
