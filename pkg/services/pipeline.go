package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/catalog"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
)

// StageName identifies a pipeline stage in logs, errors and the run ledger.
type StageName string

const (
	StageFetch            StageName = "fetch"
	StagePrepareRaw       StageName = "prepare_raw"
	StageStoreRaw         StageName = "store_raw"
	StageTransform        StageName = "transform"
	StageStoreTransformed StageName = "store_transformed"
	StagePrepareML        StageName = "prepare_ml"
	StageStoreMLReady     StageName = "store_ml_ready"
	StageCommit           StageName = "commit"
)

// StageError reports the stage that aborted a run.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageExecutor is one step of the pipeline. Stages run in order and share
// a RunState; each reads what earlier stages produced and adds its own output.
type StageExecutor interface {
	Name() StageName
	Execute(ctx context.Context, state *RunState) error
}

// RunState carries stage outputs through a single run.
type RunState struct {
	RunID uuid.UUID

	Products    []models.Product
	Raw         dataframe.DataFrame
	ShapeIssues *apperrors.ShapeError
	Transformed dataframe.DataFrame
	Categories  []string
	MLReady     dataframe.DataFrame
	Manifest    *models.FeatureManifest

	writer *runWriter
}

// RunSummary describes a successful run.
type RunSummary struct {
	RunID           uuid.UUID
	Tables          config.TableNames
	RawRows         int
	TransformedRows int
	MLReadyRows     int
	Categories      []string
	ShapeIssues     *apperrors.ShapeError
	ManifestPath    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Pipeline runs fetch, raw preparation, transform and ML preparation,
// storing the output of each data stage.
type Pipeline struct {
	cfg         *config.Config
	fetcher     catalog.Fetcher
	store       store.Store
	transformer *Transformer
	ml          *MLPreparer
	logger      *zap.Logger
	now         func() time.Time
}

// NewPipeline wires a pipeline from configuration.
func NewPipeline(cfg *config.Config, fetcher catalog.Fetcher, st store.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		fetcher:     fetcher,
		store:       st,
		transformer: NewTransformer(cfg.Features.Categories, logger),
		ml:          NewMLPreparer(cfg.Features.ZeroVariance, logger),
		logger:      logger.Named("pipeline"),
		now:         time.Now,
	}
}

// Stages returns the executors in run order.
func (p *Pipeline) Stages() []StageExecutor {
	tables := p.cfg.Tables()
	return []StageExecutor{
		&fetchStage{fetcher: p.fetcher, url: p.cfg.Source.URL},
		&prepareRawStage{logger: p.logger},
		&storeStage{name: StageStoreRaw, table: tables.Raw, frame: func(s *RunState) dataframe.DataFrame { return s.Raw }},
		&transformStage{transformer: p.transformer},
		&storeStage{name: StageStoreTransformed, table: tables.Transformed, frame: func(s *RunState) dataframe.DataFrame { return s.Transformed }},
		&prepareMLStage{ml: p.ml},
		&storeStage{name: StageStoreMLReady, table: tables.MLReady, frame: func(s *RunState) dataframe.DataFrame { return s.MLReady }},
	}
}

// Run executes every stage once. Any stage error aborts the run; with an
// atomic store nothing from this run becomes visible. The outcome is recorded
// in the run ledger either way.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	state := &RunState{
		RunID:  uuid.New(),
		writer: &runWriter{store: p.store, atomic: p.cfg.Store.Atomic},
	}
	run := &models.PipelineRun{
		ID:        state.RunID,
		SourceURL: p.cfg.Source.URL,
		StartedAt: p.now(),
	}
	logger := p.logger.With(zap.String("run_id", state.RunID.String()))

	logger.Info("Pipeline started",
		zap.String("source", p.cfg.Source.URL),
		zap.String("store", p.cfg.Store.Type),
		zap.Bool("atomic", p.cfg.Store.Atomic))

	for _, stage := range p.Stages() {
		stageStart := p.now()
		logger.Debug("Stage started", zap.String("stage", string(stage.Name())))

		if err := stage.Execute(ctx, state); err != nil {
			return nil, p.fail(ctx, logger, state, run, stage.Name(), err)
		}

		logger.Info("Stage completed",
			zap.String("stage", string(stage.Name())),
			zap.Duration("elapsed", p.now().Sub(stageStart)))
	}

	run.Status = models.PipelineRunSucceeded
	run.RawRows = state.Raw.Nrow()
	run.TransformedRows = state.Transformed.Nrow()
	run.MLReadyRows = state.MLReady.Nrow()
	run.FinishedAt = p.now()

	if err := state.writer.finish(ctx, run); err != nil {
		return nil, p.fail(ctx, logger, state, run, StageCommit, err)
	}

	summary := &RunSummary{
		RunID:           state.RunID,
		Tables:          p.cfg.Tables(),
		RawRows:         run.RawRows,
		TransformedRows: run.TransformedRows,
		MLReadyRows:     run.MLReadyRows,
		Categories:      state.Categories,
		ShapeIssues:     state.ShapeIssues,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}

	if path := p.cfg.Features.ManifestPath; path != "" {
		state.Manifest.RunID = state.RunID.String()
		state.Manifest.GeneratedAt = run.FinishedAt.UTC()
		state.Manifest.Table = summary.Tables.MLReady
		state.Manifest.Categories = state.Categories
		if err := WriteManifest(path, state.Manifest); err != nil {
			// The tables are committed; a missing manifest does not undo the run.
			logger.Error("Failed to write feature manifest", zap.String("path", path), zap.Error(err))
		} else {
			summary.ManifestPath = path
		}
	}

	logger.Info("Pipeline completed",
		zap.Int("raw_rows", summary.RawRows),
		zap.Int("ml_ready_rows", summary.MLReadyRows),
		zap.Strings("categories", summary.Categories),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	return summary, nil
}

// fail rolls back the run's session, records the failure and returns the
// stage-qualified error.
func (p *Pipeline) fail(ctx context.Context, logger *zap.Logger, state *RunState, run *models.PipelineRun, stage StageName, err error) error {
	if rbErr := state.writer.abort(); rbErr != nil {
		logger.Warn("Failed to roll back run", zap.Error(rbErr))
	}

	stageErr := &StageError{Stage: stage, Err: err}

	run.Status = models.PipelineRunFailed
	run.FailedStage = string(stage)
	run.Error = err.Error()
	run.RawRows = state.Raw.Nrow()
	run.TransformedRows = state.Transformed.Nrow()
	run.MLReadyRows = state.MLReady.Nrow()
	run.FinishedAt = p.now()

	// Best effort: the ledger must not mask the original failure.
	if recErr := p.store.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
		logger.Warn("Failed to record failed run", zap.Error(recErr))
	}

	logger.Error("Pipeline failed", zap.String("stage", string(stage)), zap.Error(err))
	return stageErr
}

// runWriter hands store stages the session they write through. Atomic runs
// share one session committed at the end; otherwise each table commits alone.
type runWriter struct {
	store  store.Store
	atomic bool
	shared store.Session
}

func (w *runWriter) replace(ctx context.Context, name string, df dataframe.DataFrame) error {
	if w.atomic {
		if w.shared == nil {
			sess, err := w.store.Begin(ctx)
			if err != nil {
				return err
			}
			w.shared = sess
		}
		return w.shared.Replace(ctx, name, df)
	}

	sess, err := w.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := sess.Replace(ctx, name, df); err != nil {
		sess.Rollback()
		return err
	}
	return sess.Commit()
}

func (w *runWriter) finish(ctx context.Context, run *models.PipelineRun) error {
	if !w.atomic || w.shared == nil {
		return w.store.RecordRun(ctx, run)
	}
	if err := w.shared.RecordRun(ctx, run); err != nil {
		return err
	}
	err := w.shared.Commit()
	w.shared = nil
	return err
}

func (w *runWriter) abort() error {
	if w.shared == nil {
		return nil
	}
	err := w.shared.Rollback()
	w.shared = nil
	return err
}

type fetchStage struct {
	fetcher catalog.Fetcher
	url     string
}

func (s *fetchStage) Name() StageName { return StageFetch }

func (s *fetchStage) Execute(ctx context.Context, state *RunState) error {
	products, err := s.fetcher.FetchProducts(ctx, s.url)
	if err != nil {
		return err
	}
	state.Products = products
	return nil
}

type prepareRawStage struct {
	logger *zap.Logger
}

func (s *prepareRawStage) Name() StageName { return StagePrepareRaw }

func (s *prepareRawStage) Execute(_ context.Context, state *RunState) error {
	result, err := PrepareRaw(state.Products)
	if err != nil {
		return err
	}
	if result.ShapeIssues != nil {
		s.logger.Warn("Records have inconsistent attributes; absent values stored as null",
			zap.Int("records", len(result.ShapeIssues.Missing)),
			zap.Error(result.ShapeIssues))
	}
	state.Raw = result.Frame
	state.ShapeIssues = result.ShapeIssues
	return nil
}

type transformStage struct {
	transformer *Transformer
}

func (s *transformStage) Name() StageName { return StageTransform }

func (s *transformStage) Execute(_ context.Context, state *RunState) error {
	df, categories, err := s.transformer.Transform(state.Raw)
	if err != nil {
		return err
	}
	state.Transformed = df
	state.Categories = categories
	return nil
}

type prepareMLStage struct {
	ml *MLPreparer
}

func (s *prepareMLStage) Name() StageName { return StagePrepareML }

func (s *prepareMLStage) Execute(_ context.Context, state *RunState) error {
	df, manifest, err := s.ml.Prepare(state.Transformed)
	if err != nil {
		return err
	}
	state.MLReady = df
	state.Manifest = manifest
	return nil
}

type storeStage struct {
	name  StageName
	table string
	frame func(*RunState) dataframe.DataFrame
}

func (s *storeStage) Name() StageName { return s.name }

func (s *storeStage) Execute(ctx context.Context, state *RunState) error {
	return state.writer.replace(ctx, s.table, s.frame(state))
}

// FailedStage returns the stage named by a Run error, if any.
func FailedStage(err error) (StageName, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
