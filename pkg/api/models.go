// Package api defines the wire types shared between the backend service and
// its clients.
package api

import (
	"time"

	"github.com/google/uuid"

	"photo-backend/internal/imaging"
)

type Preset struct {
	Id          uuid.UUID
	Name        string
	Description string
	Steps       []imaging.Step
	Builtin     bool
}

type CreatePresetRequest struct {
	Name        string
	Description string
	Steps       []imaging.Step
}

type CreatePresetResponse struct {
	PresetId uuid.UUID
}

type TaskStatusCategory struct {
	TotalTasks int
	TotalSize  int64
}

type Job struct {
	Id uuid.UUID

	PresetId *uuid.UUID
	Steps    []imaging.Step

	Status string

	SourceType     string
	UploadId       *uuid.UUID
	SourceS3Bucket string
	SourceS3Prefix string

	DestS3Bucket string
	DestS3Prefix string

	OutputFormat string

	CreationTime time.Time

	SucceededFileCount int
	FailedFileCount    int
	TotalFileCount     int

	ScanTaskStatus      string                        `json:"ScanTaskStatus,omitempty"`
	ProcessTaskStatuses map[string]TaskStatusCategory `json:"ProcessTaskStatuses,omitempty"`
}

type CreateJobRequest struct {
	// Exactly one of PresetId or Steps selects the pipeline.
	PresetId uuid.UUID
	Steps    []imaging.Step

	// Exactly one of UploadId, SourceS3Bucket(+Prefix), or SourceURLs selects
	// the photo source.
	UploadId       uuid.UUID
	SourceS3Bucket string
	SourceS3Prefix string
	SourceURLs     []string

	DestS3Bucket string
	DestS3Prefix string

	// OutputFormat is "keep" (default) or one of jpeg/png/gif/tiff/bmp.
	OutputFormat string
	JPEGQuality  int
}

type CreateJobResponse struct {
	JobId uuid.UUID
}

type Output struct {
	SourceKey string
	OutputKey string
	Width     int
	Height    int
	Format    string
	ByteSize  int64
	Checksum  string
}

type JobError struct {
	Error     string
	Timestamp time.Time
}

type UploadResponse struct {
	Id        uuid.UUID
	FileCount int
	Checksums map[string]string
}
