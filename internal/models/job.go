package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in the Redis job hash.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

// Job modes select the consumer handler.
const (
	ModeRaw      = "raw"
	ModeTemplate = "template"
)

// IsTerminal reports whether no further transition is allowed from status.
func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusError
}

// Job is an asynchronous rendering unit tracked by id.
type Job struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Payload   []byte    `json:"-"`
	URL       string    `json:"url,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QueueEntry is the lightweight pointer pushed onto the queue list.
type QueueEntry struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`
}

// JobStatusResponse is what pollers see.
type JobStatusResponse struct {
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusResponse projects the job onto the polling shape.
func (j Job) StatusResponse() JobStatusResponse {
	return JobStatusResponse{
		Status:    j.Status,
		URL:       j.URL,
		FileName:  j.FileName,
		Size:      j.Size,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
