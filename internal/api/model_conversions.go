package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"photo-backend/internal/database"
	"photo-backend/internal/imaging"
	"photo-backend/pkg/api"
)

func convertSteps(data []byte) ([]imaging.Step, error) {
	var steps []imaging.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		slog.Error("error unmarshalling stored pipeline steps", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error reading stored pipeline")
	}
	return steps, nil
}

func convertPreset(p database.Preset) (api.Preset, error) {
	steps, err := convertSteps(p.Steps)
	if err != nil {
		return api.Preset{}, err
	}

	return api.Preset{
		Id:          p.Id,
		Name:        p.Name,
		Description: p.Description,
		Steps:       steps,
		Builtin:     p.Builtin,
	}, nil
}

func convertPresets(ps []database.Preset) ([]api.Preset, error) {
	presets := make([]api.Preset, 0, len(ps))
	for _, p := range ps {
		preset, err := convertPreset(p)
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, nil
}

func convertJob(j database.Job) (api.Job, error) {
	steps, err := convertSteps(j.Steps)
	if err != nil {
		return api.Job{}, err
	}

	job := api.Job{
		Id:                 j.Id,
		Steps:              steps,
		Status:             j.Status,
		SourceType:         j.SourceType,
		SourceS3Bucket:     j.SourceS3Bucket.String,
		SourceS3Prefix:     j.SourceS3Prefix.String,
		DestS3Bucket:       j.DestS3Bucket,
		DestS3Prefix:       j.DestS3Prefix.String,
		OutputFormat:       j.OutputFormat,
		CreationTime:       j.CreationTime,
		SucceededFileCount: j.SucceededFileCount,
		FailedFileCount:    j.FailedFileCount,
		TotalFileCount:     j.TotalFileCount,
	}

	if j.PresetId.Valid {
		job.PresetId = &j.PresetId.UUID
	}
	if j.UploadId.Valid {
		job.UploadId = &j.UploadId.UUID
	}
	if j.ScanTask != nil {
		job.ScanTaskStatus = j.ScanTask.Status
	}

	return job, nil
}

func convertJobs(js []database.Job) ([]api.Job, error) {
	jobs := make([]api.Job, 0, len(js))
	for _, j := range js {
		job, err := convertJob(j)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func convertOutput(o database.OutputObject) api.Output {
	return api.Output{
		SourceKey: o.SourceKey,
		OutputKey: o.OutputKey,
		Width:     o.Width,
		Height:    o.Height,
		Format:    o.Format,
		ByteSize:  o.ByteSize,
		Checksum:  o.Checksum,
	}
}

func convertOutputs(os []database.OutputObject) []api.Output {
	outputs := make([]api.Output, 0, len(os))
	for _, o := range os {
		outputs = append(outputs, convertOutput(o))
	}
	return outputs
}

func convertJobError(e database.JobError) api.JobError {
	return api.JobError{
		Error:     e.Error,
		Timestamp: e.Timestamp,
	}
}

func convertJobErrors(es []database.JobError) []api.JobError {
	errs := make([]api.JobError, 0, len(es))
	for _, e := range es {
		errs = append(errs, convertJobError(e))
	}
	return errs
}
