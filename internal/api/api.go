package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"photo-backend/internal/database"
	"photo-backend/internal/imaging"
	"photo-backend/internal/messaging"
	"photo-backend/internal/storage"
	"photo-backend/pkg/api"
	"photo-backend/pkg/checksum"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxUploadBytes bounds a single multipart upload request.
const maxUploadBytes = 1 << 30

type BackendService struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher

	uploadBucket     string
	chunkTargetBytes int64
}

func NewBackendService(db *gorm.DB, store storage.ObjectStore, pub messaging.Publisher, uploadBucket string, chunkTargetBytes int64) *BackendService {
	return &BackendService{
		db:               db,
		storage:          store,
		publisher:        pub,
		uploadBucket:     uploadBucket,
		chunkTargetBytes: chunkTargetBytes,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/presets", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreatePreset))
		r.Get("/", RestHandler(s.ListPresets))
		r.Get("/{preset_id}", RestHandler(s.GetPreset))
		r.Delete("/{preset_id}", RestHandler(s.DeletePreset))
	})
	r.Post("/uploads", RestHandler(s.CreateUpload))
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateJob))
		r.Get("/", RestHandler(s.ListJobs))
		r.Get("/{job_id}", RestHandler(s.GetJob))
		r.Post("/{job_id}/stop", RestHandler(s.StopJob))
		r.Delete("/{job_id}", RestHandler(s.DeleteJob))
		r.Get("/{job_id}/outputs", RestHandler(s.GetJobOutputs))
		r.Get("/{job_id}/errors", RestHandler(s.GetJobErrors))
	})
}

func (s *BackendService) CreatePreset(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreatePresetRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validatePresetName(req.Name); err != nil {
		return nil, err
	}

	if err := imaging.ValidateSteps(req.Steps); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid pipeline: %v", err)
	}

	stepsJson, err := json.Marshal(req.Steps)
	if err != nil {
		slog.Error("error marshalling preset steps", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to serialize pipeline steps")
	}

	ctx := r.Context()

	var existing int64
	if err := s.db.WithContext(ctx).Model(&database.Preset{}).Where("name = ?", req.Name).Count(&existing).Error; err != nil {
		slog.Error("error checking for existing preset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create preset")
	}
	if existing > 0 {
		return nil, CodedErrorf(http.StatusConflict, "preset '%s' already exists", req.Name)
	}

	preset := database.Preset{
		Id:           uuid.New(),
		Name:         req.Name,
		Description:  req.Description,
		Steps:        datatypes.JSON(stepsJson),
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&preset).Error; err != nil {
		slog.Error("error creating preset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create preset")
	}

	slog.Info("created preset", "preset_id", preset.Id, "name", preset.Name)

	return api.CreatePresetResponse{PresetId: preset.Id}, nil
}

func (s *BackendService) ListPresets(r *http.Request) (any, error) {
	var presets []database.Preset
	if err := s.db.WithContext(r.Context()).Order("name").Find(&presets).Error; err != nil {
		slog.Error("error listing presets", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving presets")
	}

	return convertPresets(presets)
}

func (s *BackendService) GetPreset(r *http.Request) (any, error) {
	presetId, err := URLParamUUID(r, "preset_id")
	if err != nil {
		return nil, err
	}

	var preset database.Preset
	if err := s.db.WithContext(r.Context()).First(&preset, "id = ?", presetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "preset not found")
		}
		slog.Error("error getting preset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving preset record")
	}

	return convertPreset(preset)
}

func (s *BackendService) DeletePreset(r *http.Request) (any, error) {
	presetId, err := URLParamUUID(r, "preset_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var preset database.Preset
	if err := s.db.WithContext(ctx).First(&preset, "id = ?", presetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "preset not found")
		}
		slog.Error("error getting preset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving preset record")
	}

	if preset.Builtin {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "builtin preset '%s' cannot be deleted", preset.Name)
	}

	// Jobs snapshot their steps at submission, so deleting a preset never
	// affects existing jobs.
	if err := s.db.WithContext(ctx).Delete(&preset).Error; err != nil {
		slog.Error("error deleting preset", "preset_id", presetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete preset")
	}

	slog.Info("deleted preset", "preset_id", presetId, "name", preset.Name)

	return nil, nil
}

func (s *BackendService) CreateUpload(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "expected multipart form upload: %v", err)
	}

	ctx := r.Context()
	uploadId := uuid.New()
	checksums := make(map[string]string)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "error reading multipart form: %v", err)
		}

		filename := part.FileName()
		if filename == "" {
			continue // skip non-file fields
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "error reading uploaded file '%s': %v", filename, err)
		}

		key := fmt.Sprintf("%s/%s", uploadId, filename)
		if err := s.storage.PutObject(ctx, s.uploadBucket, key, bytes.NewReader(data)); err != nil {
			slog.Error("error storing uploaded file", "upload_id", uploadId, "filename", filename, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to store uploaded file '%s'", filename)
		}

		checksums[filename] = checksum.Bytes(data)
	}

	if len(checksums) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "upload contains no files")
	}

	upload := database.Upload{
		Id:           uploadId,
		CreationTime: time.Now().UTC(),
		FileCount:    len(checksums),
	}
	if err := s.db.WithContext(ctx).Create(&upload).Error; err != nil {
		slog.Error("error creating upload record", "upload_id", uploadId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to record upload")
	}

	slog.Info("created upload", "upload_id", uploadId, "files", len(checksums))

	return api.UploadResponse{Id: uploadId, FileCount: len(checksums), Checksums: checksums}, nil
}

// resolveSteps returns the job's pipeline as JSON, either copied from a preset
// or taken inline from the request. Exactly one of the two must be provided.
func (s *BackendService) resolveSteps(r *http.Request, req api.CreateJobRequest) (datatypes.JSON, uuid.NullUUID, error) {
	hasPreset := req.PresetId != uuid.Nil
	hasInline := len(req.Steps) > 0

	if hasPreset == hasInline {
		return nil, uuid.NullUUID{}, CodedErrorf(http.StatusUnprocessableEntity, "exactly one of preset_id or steps must be provided")
	}

	if hasInline {
		if err := imaging.ValidateSteps(req.Steps); err != nil {
			return nil, uuid.NullUUID{}, CodedErrorf(http.StatusUnprocessableEntity, "invalid pipeline: %v", err)
		}

		stepsJson, err := json.Marshal(req.Steps)
		if err != nil {
			slog.Error("error marshalling job steps", "error", err)
			return nil, uuid.NullUUID{}, CodedErrorf(http.StatusInternalServerError, "failed to serialize pipeline steps")
		}

		return datatypes.JSON(stepsJson), uuid.NullUUID{}, nil
	}

	var preset database.Preset
	if err := s.db.WithContext(r.Context()).First(&preset, "id = ?", req.PresetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, uuid.NullUUID{}, CodedErrorf(http.StatusNotFound, "preset not found")
		}
		slog.Error("error getting preset", "error", err)
		return nil, uuid.NullUUID{}, CodedErrorf(http.StatusInternalServerError, "error retrieving preset record")
	}

	return preset.Steps, uuid.NullUUID{UUID: preset.Id, Valid: true}, nil
}

// resolveSource validates that exactly one photo source is set and returns the
// source columns for the job row.
func (s *BackendService) resolveSource(r *http.Request, req api.CreateJobRequest) (*database.Job, error) {
	sources := 0
	if req.UploadId != uuid.Nil {
		sources++
	}
	if req.SourceS3Bucket != "" {
		sources++
	}
	if len(req.SourceURLs) > 0 {
		sources++
	}
	if sources != 1 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "exactly one of upload_id, source_s3_bucket, or source_urls must be provided")
	}

	switch {
	case req.UploadId != uuid.Nil:
		var upload database.Upload
		if err := s.db.WithContext(r.Context()).First(&upload, "id = ?", req.UploadId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, CodedErrorf(http.StatusNotFound, "upload not found")
			}
			slog.Error("error getting upload", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving upload record")
		}

		return &database.Job{
			SourceType: database.SourceUpload,
			UploadId:   uuid.NullUUID{UUID: req.UploadId, Valid: true},
		}, nil

	case req.SourceS3Bucket != "":
		return &database.Job{
			SourceType:     database.SourceS3,
			SourceS3Bucket: sql.NullString{String: req.SourceS3Bucket, Valid: true},
			SourceS3Prefix: sql.NullString{String: req.SourceS3Prefix, Valid: req.SourceS3Prefix != ""},
		}, nil

	default:
		for _, raw := range req.SourceURLs {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid source url '%s': must be http or https", raw)
			}
		}

		urlsJson, err := json.Marshal(req.SourceURLs)
		if err != nil {
			slog.Error("error marshalling source urls", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to serialize source urls")
		}

		return &database.Job{
			SourceType: database.SourceURL,
			SourceURLs: datatypes.JSON(urlsJson),
		}, nil
	}
}

func (s *BackendService) CreateJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateJobRequest](r)
	if err != nil {
		return nil, err
	}

	steps, presetId, err := s.resolveSteps(r, req)
	if err != nil {
		return nil, err
	}

	job, err := s.resolveSource(r, req)
	if err != nil {
		return nil, err
	}

	if req.DestS3Bucket == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required field: dest_s3_bucket")
	}

	outputFormat := req.OutputFormat
	if outputFormat == "" {
		outputFormat = imaging.FormatKeep
	}
	if err := imaging.ValidateFormat(outputFormat); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
	}

	if req.JPEGQuality < 0 || req.JPEGQuality > 100 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "jpeg_quality must be in [1, 100], got %d", req.JPEGQuality)
	}

	ctx := r.Context()

	job.Id = uuid.New()
	job.PresetId = presetId
	job.Steps = steps
	job.Status = database.JobQueued
	job.DestS3Bucket = req.DestS3Bucket
	job.DestS3Prefix = sql.NullString{String: req.DestS3Prefix, Valid: req.DestS3Prefix != ""}
	job.OutputFormat = outputFormat
	job.JPEGQuality = req.JPEGQuality
	job.CreationTime = time.Now().UTC()

	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(job).Error; err != nil {
			return err
		}

		scan := database.ScanTask{
			JobId:            job.Id,
			Status:           database.JobQueued,
			CreationTime:     time.Now().UTC(),
			ChunkTargetBytes: s.chunkTargetBytes,
		}
		return txn.Create(&scan).Error
	})
	if err != nil {
		slog.Error("error creating job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create job entry")
	}

	if err := s.publisher.PublishScanTask(ctx, messaging.ScanTaskPayload{JobId: job.Id}); err != nil {
		slog.Error("error publishing scan task", "job_id", job.Id, "error", err)
		database.UpdateJobStatus(ctx, s.db, job.Id, database.JobFailed)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue job")
	}

	slog.Info("submitted job", "job_id", job.Id, "source_type", job.SourceType)

	return api.CreateJobResponse{JobId: job.Id}, nil
}

type listJobsParams struct {
	Limit  int
	Offset int
}

func (s *BackendService) ListJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[listJobsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 100
	}

	var jobs []database.Job
	if err := s.db.WithContext(r.Context()).
		Where("deleted = ?", false).
		Order("creation_time DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Preload("ScanTask").
		Find(&jobs).Error; err != nil {
		slog.Error("error listing jobs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving jobs")
	}

	return convertJobs(jobs)
}

func (s *BackendService) getJob(r *http.Request) (*database.Job, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	var job database.Job
	if err := s.db.WithContext(r.Context()).Preload("ScanTask").First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "job not found")
		}
		slog.Error("error getting job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job record")
	}

	if job.Deleted {
		return nil, CodedErrorf(http.StatusNotFound, "job not found")
	}

	return &job, nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}

	type statusRollup struct {
		Status    string
		TaskCount int
		TotalSize int64
	}

	var rollups []statusRollup
	if err := s.db.WithContext(r.Context()).
		Model(&database.ProcessTask{}).
		Select("status, count(*) as task_count, sum(total_size) as total_size").
		Where("job_id = ?", job.Id).
		Group("status").
		Scan(&rollups).Error; err != nil {
		slog.Error("error aggregating task statuses", "job_id", job.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job record")
	}

	result, err := convertJob(*job)
	if err != nil {
		return nil, err
	}

	result.ProcessTaskStatuses = make(map[string]api.TaskStatusCategory, len(rollups))
	for _, rollup := range rollups {
		result.ProcessTaskStatuses[rollup.Status] = api.TaskStatusCategory{
			TotalTasks: rollup.TaskCount,
			TotalSize:  rollup.TotalSize,
		}
	}

	return result, nil
}

func (s *BackendService) StopJob(r *http.Request) (any, error) {
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}

	if job.Status == database.JobCompleted || job.Status == database.JobFailed {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "job has already finished with status %s", job.Status)
	}

	if err := s.db.WithContext(r.Context()).Model(&database.Job{Id: job.Id}).Update("stopped", true).Error; err != nil {
		slog.Error("error stopping job", "job_id", job.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to stop job")
	}

	slog.Info("stopped job", "job_id", job.Id)

	return nil, nil
}

func (s *BackendService) DeleteJob(r *http.Request) (any, error) {
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}

	// Soft delete: the job disappears from the API but its rows stay for
	// auditing. Processed outputs in the destination bucket are not touched.
	if err := s.db.WithContext(r.Context()).
		Model(&database.Job{Id: job.Id}).
		Updates(map[string]any{"deleted": true, "stopped": true}).Error; err != nil {
		slog.Error("error deleting job", "job_id", job.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete job")
	}

	slog.Info("deleted job", "job_id", job.Id)

	return nil, nil
}

type listOutputsParams struct {
	Limit  int
	Offset int
	Format string
}

func (s *BackendService) GetJobOutputs(r *http.Request) (any, error) {
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[listOutputsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 1000 {
		params.Limit = 1000
	}

	query := s.db.WithContext(r.Context()).
		Where("job_id = ?", job.Id).
		Order("source_key").
		Limit(params.Limit).
		Offset(params.Offset)
	if params.Format != "" {
		query = query.Where("format = ?", params.Format)
	}

	var outputs []database.OutputObject
	if err := query.Find(&outputs).Error; err != nil {
		slog.Error("error listing job outputs", "job_id", job.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job outputs")
	}

	return convertOutputs(outputs), nil
}

func (s *BackendService) GetJobErrors(r *http.Request) (any, error) {
	job, err := s.getJob(r)
	if err != nil {
		return nil, err
	}

	var errs []database.JobError
	if err := s.db.WithContext(r.Context()).
		Where("job_id = ?", job.Id).
		Order("timestamp").
		Find(&errs).Error; err != nil {
		slog.Error("error listing job errors", "job_id", job.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job errors")
	}

	return convertJobErrors(errs), nil
}
