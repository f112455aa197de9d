package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineRunStatus is the outcome recorded in the run ledger.
type PipelineRunStatus string

const (
	PipelineRunSucceeded PipelineRunStatus = "succeeded"
	PipelineRunFailed    PipelineRunStatus = "failed"
)

// PipelineRun is one row of the pipeline_runs ledger.
type PipelineRun struct {
	ID              uuid.UUID
	SourceURL       string
	Status          PipelineRunStatus
	RawRows         int
	TransformedRows int
	MLReadyRows     int
	FailedStage     string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}
