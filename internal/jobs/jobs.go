// Package jobs tracks render jobs. A record is always replaced as a whole
// and its status only moves forward: processing -> completed | error.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "error"
)

var (
	ErrNotFound   = errors.New("job not found")
	ErrTransition = errors.New("invalid status transition")
)

// Record is the polled job status.
type Record struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	PreviewURL *string   `json:"preview_url"`
	VideoURL   *string   `json:"video_url"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// CanTransition reports whether a record in from may be replaced by one in
// to. An empty from means the record does not exist yet.
func CanTransition(from, to Status) bool {
	switch from {
	case "":
		return to == Processing
	case Processing:
		return to == Processing || to == Completed || to == Failed
	default:
		return false
	}
}

func checkTransition(id string, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: job %s %q -> %q", ErrTransition, id, from, to)
	}
	return nil
}

// Store persists job records.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// NewRecord creates a processing record.
func NewRecord(id, message string) Record {
	now := time.Now().UTC()
	return Record{ID: id, Status: Processing, Message: message, CreatedAt: now, UpdatedAt: now}
}

func (r Record) withStatus(s Status, message string) Record {
	r.Status = s
	r.Message = message
	r.UpdatedAt = time.Now().UTC()
	return r
}

// Complete returns the completed form of r.
func (r Record) Complete(videoURL, message string) Record {
	r = r.withStatus(Completed, message)
	r.VideoURL = &videoURL
	return r
}

// Fail returns the error form of r.
func (r Record) Fail(message string) Record {
	return r.withStatus(Failed, message)
}

// WithPreview attaches the preview artifact.
func (r Record) WithPreview(url, message string) Record {
	r = r.withStatus(Processing, message)
	r.PreviewURL = &url
	return r
}
