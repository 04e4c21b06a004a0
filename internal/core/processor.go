// Package core runs the photo processing tasks: expanding submitted jobs into
// chunked process tasks and executing pipelines over each photo.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"photo-backend/internal/database"
	"photo-backend/internal/fetch"
	"photo-backend/internal/imaging"
	"photo-backend/internal/messaging"
	"photo-backend/internal/storage"
	"photo-backend/pkg/checksum"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
	receiver  messaging.Receiver
	fetcher   *fetch.Fetcher

	uploadBucket string
}

func NewTaskProcessor(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, receiver messaging.Receiver, uploadBucket string) *TaskProcessor {
	return &TaskProcessor{
		db:           db,
		storage:      store,
		publisher:    publisher,
		receiver:     receiver,
		fetcher:      fetch.NewFetcher(),
		uploadBucket: uploadBucket,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.receiver.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.receiver.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.ScanQueue:
		var payload messaging.ScanTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling scan task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processScanTask(ctx, payload)

	case messaging.ProcessQueue:
		var payload messaging.ProcessTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling process task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processProcessTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

// jobSource resolves the bucket the job's photos live in. URL-sourced jobs
// read from the upload bucket, where the scan task stages fetched photos.
func (proc *TaskProcessor) jobSource(job *database.Job) (bucket, prefix string, err error) {
	switch job.SourceType {
	case database.SourceUpload:
		if !job.UploadId.Valid {
			return "", "", fmt.Errorf("upload job %s has no upload id", job.Id)
		}
		return proc.uploadBucket, job.UploadId.UUID.String() + "/", nil
	case database.SourceS3:
		return job.SourceS3Bucket.String, job.SourceS3Prefix.String, nil
	case database.SourceURL:
		return proc.uploadBucket, "fetched/" + job.Id.String() + "/", nil
	default:
		return "", "", fmt.Errorf("unknown source type %q for job %s", job.SourceType, job.Id)
	}
}

func (proc *TaskProcessor) processScanTask(ctx context.Context, payload messaging.ScanTaskPayload) error {
	jobId := payload.JobId

	slog.Info("processing scan task", "job_id", jobId)

	var scan database.ScanTask
	if err := proc.db.Preload("Job").First(&scan, "job_id = ?", jobId).Error; err != nil {
		slog.Error("error fetching scan task", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting scan task: %w", err)
	}

	if scan.Job.Stopped || scan.Job.Deleted {
		slog.Info("job stopped, skipping scan task", "job_id", jobId)
		return nil
	}

	if err := database.UpdateScanTaskStatus(ctx, proc.db, jobId, database.JobRunning); err != nil {
		slog.Error("error marking scan task as running", "job_id", jobId, "error", err)
	}

	sourceBucket, sourcePrefix, err := proc.jobSource(scan.Job)
	if err != nil {
		return proc.failScan(ctx, jobId, err)
	}

	if scan.Job.SourceType == database.SourceURL {
		var urls []string
		if err := json.Unmarshal(scan.Job.SourceURLs, &urls); err != nil {
			return proc.failScan(ctx, jobId, fmt.Errorf("error unmarshalling source urls: %w", err))
		}

		if _, err := proc.fetcher.FetchAll(ctx, proc.storage, sourceBucket, strings.TrimSuffix(sourcePrefix, "/"), urls); err != nil {
			return proc.failScan(ctx, jobId, fmt.Errorf("error fetching source urls: %w", err))
		}
	}

	objects, err := proc.storage.ListObjects(ctx, sourceBucket, sourcePrefix)
	if err != nil {
		return proc.failScan(ctx, jobId, fmt.Errorf("error listing source objects: %w", err))
	}

	var photos []storage.Object
	for _, obj := range objects {
		if imaging.IsSupportedKey(obj.Name) {
			photos = append(photos, obj)
		} else {
			slog.Info("skipping object with unsupported extension", "job_id", jobId, "key", obj.Name)
		}
	}

	targetBytes := scan.ChunkTargetBytes
	if targetBytes <= 0 {
		targetBytes = 512 * 1024 * 1024
	}

	taskId := 0
	var chunkKeys []string
	var chunkSize int64

	flush := func() error {
		if len(chunkKeys) == 0 {
			return nil
		}

		keysJson, err := json.Marshal(chunkKeys)
		if err != nil {
			return fmt.Errorf("error marshalling chunk keys: %w", err)
		}

		task := database.ProcessTask{
			JobId:        jobId,
			TaskId:       taskId,
			Status:       database.JobQueued,
			CreationTime: time.Now().UTC(),
			SourceKeys:   datatypes.JSON(keysJson),
			TotalSize:    chunkSize,
		}
		if err := proc.db.WithContext(ctx).Create(&task).Error; err != nil {
			return fmt.Errorf("error creating process task: %w", err)
		}

		if err := proc.publisher.PublishProcessTask(ctx, messaging.ProcessTaskPayload{JobId: jobId, TaskId: taskId}); err != nil {
			return fmt.Errorf("error publishing process task %d: %w", taskId, err)
		}

		taskId++
		chunkKeys = nil
		chunkSize = 0
		return nil
	}

	for _, photo := range photos {
		if len(chunkKeys) > 0 && chunkSize+photo.Size > targetBytes {
			if err := flush(); err != nil {
				return proc.failScan(ctx, jobId, err)
			}
		}
		chunkKeys = append(chunkKeys, photo.Name)
		chunkSize += photo.Size
	}
	if err := flush(); err != nil {
		return proc.failScan(ctx, jobId, err)
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.Job{Id: jobId}).
		Update("total_file_count", len(photos)).Error; err != nil {
		slog.Error("error updating total file count", "job_id", jobId, "error", err)
	}

	jobStatus := database.JobRunning
	if len(photos) == 0 {
		slog.Info("no photos matched source, completing job", "job_id", jobId)
		jobStatus = database.JobCompleted
	}
	if err := database.UpdateJobStatus(ctx, proc.db, jobId, jobStatus); err != nil {
		return fmt.Errorf("error updating job status: %w", err)
	}

	if err := database.UpdateScanTaskStatus(ctx, proc.db, jobId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating scan task status to complete: %w", err)
	}

	slog.Info("scan task completed", "job_id", jobId, "photos", len(photos), "tasks", taskId)

	return nil
}

func (proc *TaskProcessor) failScan(ctx context.Context, jobId uuid.UUID, scanErr error) error {
	database.SaveJobError(ctx, proc.db, jobId, scanErr.Error())
	database.UpdateScanTaskStatus(ctx, proc.db, jobId, database.JobFailed) // nolint:errcheck
	database.UpdateJobStatus(ctx, proc.db, jobId, database.JobFailed)     // nolint:errcheck
	return scanErr
}

func (proc *TaskProcessor) processProcessTask(ctx context.Context, payload messaging.ProcessTaskPayload) error {
	jobId, taskId := payload.JobId, payload.TaskId

	slog.Info("processing photo task", "job_id", jobId, "task_id", taskId)

	var task database.ProcessTask
	if err := proc.db.Preload("Job").First(&task, "job_id = ? AND task_id = ?", jobId, taskId).Error; err != nil {
		slog.Error("error fetching process task", "job_id", jobId, "task_id", taskId, "error", err)
		return fmt.Errorf("error getting process task: %w", err)
	}

	if task.Job.Stopped || task.Job.Deleted {
		slog.Info("job stopped, skipping process task", "job_id", jobId, "task_id", taskId)
		return nil
	}

	if err := proc.db.
		Model(&database.ProcessTask{}).
		Where("job_id = ? AND task_id = ?", jobId, taskId).
		Updates(map[string]interface{}{
			"status":     database.JobRunning,
			"start_time": time.Now().UTC(),
		}).Error; err != nil {
		slog.Error("error marking task as running", "error", err)
	}

	steps, err := imaging.ParseSteps(task.Job.Steps)
	if err != nil {
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		database.UpdateProcessTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) // nolint:errcheck
		return fmt.Errorf("error parsing job pipeline: %w", err)
	}

	pipeline, err := imaging.NewPipeline(steps)
	if err != nil {
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		database.UpdateProcessTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) // nolint:errcheck
		return fmt.Errorf("error building pipeline: %w", err)
	}

	var sourceKeys []string
	if err := json.Unmarshal(task.SourceKeys, &sourceKeys); err != nil {
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		database.UpdateProcessTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) // nolint:errcheck
		return fmt.Errorf("error unmarshalling task source keys: %w", err)
	}

	sourceBucket, _, err := proc.jobSource(task.Job)
	if err != nil {
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		database.UpdateProcessTaskStatus(ctx, proc.db, jobId, taskId, database.JobFailed) // nolint:errcheck
		return err
	}

	for _, key := range sourceKeys {
		if err := proc.processPhoto(ctx, task.Job, pipeline, sourceBucket, key); err != nil {
			slog.Error("error processing photo", "job_id", jobId, "task_id", taskId, "key", key, "error", err)
			database.SaveJobError(ctx, proc.db, jobId, fmt.Sprintf("%s: %s", key, err.Error()))
			proc.updateFileCount(jobId, false) // nolint:errcheck
		} else {
			proc.updateFileCount(jobId, true) // nolint:errcheck
		}
	}

	if err := database.UpdateProcessTaskStatus(ctx, proc.db, jobId, taskId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating process task status to complete: %w", err)
	}

	if err := proc.finalizeJob(ctx, jobId); err != nil {
		return err
	}

	slog.Info("photo task completed", "job_id", jobId, "task_id", taskId, "photos", len(sourceKeys))

	return nil
}

// processPhoto runs the pipeline on a single photo and stores the result. A
// failure here only fails this file, never the whole task.
func (proc *TaskProcessor) processPhoto(ctx context.Context, job *database.Job, pipeline *imaging.Pipeline, sourceBucket, key string) error {
	data, err := proc.storage.GetObject(ctx, sourceBucket, key)
	if err != nil {
		return fmt.Errorf("error reading photo: %w", err)
	}

	img, sourceFormat, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	outputFormat := job.OutputFormat
	if outputFormat == imaging.FormatKeep {
		outputFormat = sourceFormat
	}

	processed, err := pipeline.Run(img)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, outputFormat, job.JPEGQuality); err != nil {
		return err
	}

	outputKey := outputKeyFor(job, key, outputFormat)
	if err := proc.storage.PutObject(ctx, job.DestS3Bucket, outputKey, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("error writing processed photo: %w", err)
	}

	bounds := processed.Bounds()
	output := database.OutputObject{
		JobId:     job.Id,
		SourceKey: key,
		OutputKey: outputKey,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Format:    outputFormat,
		ByteSize:  int64(buf.Len()),
		Checksum:  checksum.Bytes(buf.Bytes()),
	}
	if err := proc.db.WithContext(ctx).Save(&output).Error; err != nil {
		return fmt.Errorf("error recording output object: %w", err)
	}

	return nil
}

// outputKeyFor keeps the source key's path under the job's own prefix so that
// re-running a job overwrites its previous outputs deterministically.
func outputKeyFor(job *database.Job, sourceKey, format string) string {
	name := strings.TrimSuffix(sourceKey, path.Ext(sourceKey)) + imaging.Extension(format)
	return path.Join(job.DestS3Prefix.String, job.Id.String(), name)
}

func (proc *TaskProcessor) updateFileCount(jobId uuid.UUID, success bool) error {
	var column string
	if success {
		column = "succeeded_file_count"
	} else {
		column = "failed_file_count"
	}

	if err := proc.db.
		Model(&database.Job{}).
		Where("id = ?", jobId).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).
		Error; err != nil {
		slog.Error("could not increment file count", "job_id", jobId, "column", column, "error", err)
		return fmt.Errorf("could not increment file count: %w", err)
	}

	return nil
}

// finalizeJob completes the job once every process task has finished. The job
// only fails when nothing succeeded and at least one file failed.
func (proc *TaskProcessor) finalizeJob(ctx context.Context, jobId uuid.UUID) error {
	var pending int64
	if err := proc.db.WithContext(ctx).
		Model(&database.ProcessTask{}).
		Where("job_id = ? AND status NOT IN ?", jobId, []string{database.JobCompleted, database.JobFailed}).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("error counting pending tasks: %w", err)
	}

	if pending > 0 {
		return nil
	}

	var job database.Job
	if err := proc.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		return fmt.Errorf("error fetching job for finalization: %w", err)
	}

	status := database.JobCompleted
	if job.SucceededFileCount == 0 && job.FailedFileCount > 0 {
		status = database.JobFailed
	}

	if err := database.UpdateJobStatus(ctx, proc.db, jobId, status); err != nil {
		return fmt.Errorf("error finalizing job: %w", err)
	}

	slog.Info("job finalized", "job_id", jobId, "status", status, "succeeded", job.SucceededFileCount, "failed", job.FailedFileCount)

	return nil
}
