package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the schema at migration 0. Frozen here so later schema changes
// do not alter the behavior of this migration.

type Preset struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"uniqueIndex;not null"`
	Description string

	Steps datatypes.JSON `gorm:"not null"`

	Builtin      bool `gorm:"default:false"`
	CreationTime time.Time
}

type Job struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	PresetId uuid.NullUUID `gorm:"type:uuid"`
	Preset   *Preset       `gorm:"foreignKey:PresetId"`

	Steps datatypes.JSON `gorm:"not null"`

	Status  string `gorm:"size:20;not null"`
	Stopped bool   `gorm:"default:false"`
	Deleted bool   `gorm:"default:false"`

	SourceType     string `gorm:"size:20;not null"`
	UploadId       uuid.NullUUID
	SourceS3Bucket sql.NullString
	SourceS3Prefix sql.NullString
	SourceURLs     datatypes.JSON

	DestS3Bucket string `gorm:"not null"`
	DestS3Prefix sql.NullString

	OutputFormat string `gorm:"size:10;not null"`
	JPEGQuality  int    `gorm:"default:0"`

	CreationTime   time.Time
	CompletionTime sql.NullTime

	SucceededFileCount int `gorm:"default:0"`
	FailedFileCount    int `gorm:"default:0"`
	TotalFileCount     int `gorm:"default:0"`

	ScanTask     *ScanTask     `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
	ProcessTasks []ProcessTask `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
	Errors       []JobError    `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type ScanTask struct {
	JobId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Job   *Job      `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	CompletionTime sql.NullTime

	ChunkTargetBytes int64
}

type ProcessTask struct {
	JobId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskId int       `gorm:"primaryKey"`
	Job    *Job      `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	SourceKeys datatypes.JSON `gorm:"not null"`
	TotalSize  int64
}

type OutputObject struct {
	JobId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	SourceKey string    `gorm:"primaryKey;size:512"`

	OutputKey string `gorm:"not null"`
	Width     int
	Height    int
	Format    string `gorm:"size:10"`
	ByteSize  int64
	Checksum  string `gorm:"size:32"`
}

type JobError struct {
	JobId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

type Upload struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreationTime time.Time
	FileCount    int `gorm:"default:0"`
}

func Migration(txn *gorm.DB) error {
	return txn.AutoMigrate(
		&Preset{}, &Job{}, &ScanTask{}, &ProcessTask{}, &OutputObject{}, &JobError{}, &Upload{},
	)
}
