package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	_ "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store/sqlite"
	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/catalog"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
)

const scenarioJSON = `[
  {"id": 1, "title": "Phone", "price": "19.99", "description": "d1", "category": "electronics", "image": "i1", "rating": {"rate": 4.5, "count": 10}},
  {"id": 2, "title": "Ring", "price": "abc", "description": "d2", "category": "jewelry", "image": "i2", "rating": {"rate": 3.0, "count": 4}},
  {"id": 3, "title": "Cable", "price": 25, "description": "d3", "category": "electronics", "image": "i3", "rating": {"rate": 2.5, "count": 7}}
]`

type pipelineEnv struct {
	cfg    *config.Config
	store  *store.SQLStore
	body   string
	status int
	logs   *observer.ObservedLogs
	logger *zap.Logger
}

func newPipelineEnv(t *testing.T, atomic bool) *pipelineEnv {
	t.Helper()
	dir := t.TempDir()
	env := &pipelineEnv{body: scenarioJSON, status: http.StatusOK}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(env.status)
		w.Write([]byte(env.body))
	}))
	t.Cleanup(srv.Close)

	env.cfg = &config.Config{
		Env:    "test",
		Entity: "product",
		Source: config.SourceConfig{
			URL:          srv.URL + "/products",
			Timeout:      5 * time.Second,
			MaxBodyBytes: 1 << 20,
			UserAgent:    "catalog-pipeline-test",
		},
		Store: config.StoreConfig{
			Type:          "sqlite",
			Path:          filepath.Join(dir, "product_data.db"),
			Atomic:        atomic,
			WriteTimeout:  10 * time.Second,
			BatchSize:     200,
			RunMigrations: true,
		},
		Features: config.FeaturesConfig{
			ZeroVariance: config.ZeroVarianceZero,
			ManifestPath: filepath.Join(dir, "feature_manifest.yaml"),
		},
	}

	core, logs := observer.New(zapcore.InfoLevel)
	env.logs = logs
	env.logger = zap.New(core)

	s, err := store.Open(context.Background(), env.cfg.Store, env.logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	env.store = s
	return env
}

func (e *pipelineEnv) pipeline() *Pipeline {
	return NewPipeline(e.cfg, catalog.NewClient(e.cfg.Source, e.logger), e.store, e.logger)
}

func (e *pipelineEnv) db() *sql.DB {
	return e.store.DB()
}

func queryFloat(t *testing.T, db *sql.DB, query string) sql.NullFloat64 {
	t.Helper()
	var v sql.NullFloat64
	require.NoError(t, db.QueryRow(query).Scan(&v))
	return v
}

func tableColumns(t *testing.T, db *sql.DB, name string) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, name)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		cols = append(cols, c)
	}
	require.NoError(t, rows.Err())
	return cols
}

func TestPipeline_EndToEndScenario(t *testing.T) {
	env := newPipelineEnv(t, true)

	summary, err := env.pipeline().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.RawRows)
	assert.Equal(t, 3, summary.MLReadyRows)
	assert.Equal(t, []string{"electronics", "jewelry"}, summary.Categories)
	assert.Equal(t, env.cfg.Features.ManifestPath, summary.ManifestPath)

	db := env.db()

	assert.Equal(t, []string{"id", "title", "price", "description", "category", "image", "rating"},
		tableColumns(t, db, "raw_products"))
	assert.Equal(t, []string{
		"id", "title", "price", "description", "category", "image",
		"rating_rate", "rating_count", "category_electronics", "category_jewelry",
	}, tableColumns(t, db, "transformed_products"))

	var rating string
	require.NoError(t, db.QueryRow(`SELECT rating FROM raw_products WHERE id = 1`).Scan(&rating))
	assert.Equal(t, `{"rate":4.5,"count":10}`, rating)

	price := queryFloat(t, db, `SELECT price FROM transformed_products WHERE id = 2`)
	assert.False(t, price.Valid, "unparseable price is stored as NULL")

	scaled := queryFloat(t, db, `SELECT scaled_price FROM ml_ready_products WHERE id = 2`)
	require.True(t, scaled.Valid)
	assert.InDelta(t, 0, scaled.Float64, 1e-9, "imputed price equals the batch mean")

	manifest, err := ReadManifest(summary.ManifestPath)
	require.NoError(t, err)
	stats, ok := manifest.Feature("price")
	require.True(t, ok)
	assert.InDelta(t, (19.99+25)/2, stats.Mean, 1e-9)
	assert.Equal(t, summary.RunID.String(), manifest.RunID)
	assert.Equal(t, "ml_ready_products", manifest.Table)

	for _, table := range []string{"raw_products", "transformed_products", "ml_ready_products"} {
		assert.Equal(t, 1, env.logs.FilterMessage("Data successfully stored in table '"+table+"'").Len(), table)
	}

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM pipeline_runs WHERE id = ?`, summary.RunID.String()).Scan(&status))
	assert.Equal(t, string(models.PipelineRunSucceeded), status)
}

func TestPipeline_IsIdempotent(t *testing.T) {
	env := newPipelineEnv(t, true)

	snapshot := func() [][]any {
		rows, err := env.db().Query(`SELECT * FROM ml_ready_products ORDER BY id`)
		require.NoError(t, err)
		defer rows.Close()

		cols, err := rows.Columns()
		require.NoError(t, err)

		var out [][]any
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			require.NoError(t, rows.Scan(ptrs...))
			out = append(out, vals)
		}
		require.NoError(t, rows.Err())
		return out
	}

	_, err := env.pipeline().Run(context.Background())
	require.NoError(t, err)
	first := snapshot()

	_, err = env.pipeline().Run(context.Background())
	require.NoError(t, err)
	second := snapshot()

	assert.Equal(t, first, second)

	var runs int
	require.NoError(t, env.db().QueryRow(`SELECT COUNT(*) FROM pipeline_runs`).Scan(&runs))
	assert.Equal(t, 2, runs)
}

func TestPipeline_FetchFailureLeavesStoreUntouched(t *testing.T) {
	env := newPipelineEnv(t, true)
	env.status = http.StatusServiceUnavailable

	_, err := env.pipeline().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRetrieval)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageFetch, stage)

	var stored, failedStage string
	require.NoError(t, env.db().QueryRow(
		`SELECT status, failed_stage FROM pipeline_runs`).Scan(&stored, &failedStage))
	assert.Equal(t, string(models.PipelineRunFailed), stored)
	assert.Equal(t, string(StageFetch), failedStage)
}

// A malformed rating fails the transform after raw_products was written.
const badRatingJSON = `[
  {"id": 1, "price": 1, "category": "a", "rating": {"rate": 1, "count": 1}},
  {"id": 2, "price": 2, "category": "b", "rating": {"rate": 2}}
]`

func TestPipeline_AtomicRunRollsBackEarlierTables(t *testing.T) {
	env := newPipelineEnv(t, true)

	_, err := env.pipeline().Run(context.Background())
	require.NoError(t, err)

	env.body = badRatingJSON
	_, err = env.pipeline().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransform)

	stage, _ := FailedStage(err)
	assert.Equal(t, StageTransform, stage)

	var rows int
	require.NoError(t, env.db().QueryRow(`SELECT COUNT(*) FROM raw_products`).Scan(&rows))
	assert.Equal(t, 3, rows, "raw_products from the previous run survives")
}

func TestPipeline_NonAtomicRunKeepsEarlierTables(t *testing.T) {
	env := newPipelineEnv(t, false)

	_, err := env.pipeline().Run(context.Background())
	require.NoError(t, err)

	env.body = badRatingJSON
	_, err = env.pipeline().Run(context.Background())
	require.Error(t, err)

	var rows int
	require.NoError(t, env.db().QueryRow(`SELECT COUNT(*) FROM raw_products`).Scan(&rows))
	assert.Equal(t, 2, rows, "raw_products was replaced before the transform failed")

	require.NoError(t, env.db().QueryRow(`SELECT COUNT(*) FROM transformed_products`).Scan(&rows))
	assert.Equal(t, 3, rows, "transformed_products still holds the previous run")
}

func TestPipeline_DegenerateFeatureFailsWithPolicy(t *testing.T) {
	env := newPipelineEnv(t, true)
	env.cfg.Features.ZeroVariance = config.ZeroVarianceFail
	env.body = `[
	  {"id": 1, "price": 5, "category": "a", "rating": {"rate": 1, "count": 1}},
	  {"id": 2, "price": 6, "category": "a", "rating": {"rate": 2, "count": 2}}
	]`

	_, err := env.pipeline().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDegenerateFeature)

	stage, _ := FailedStage(err)
	assert.Equal(t, StagePrepareML, stage)
}

func TestPipeline_EmptyCatalog(t *testing.T) {
	env := newPipelineEnv(t, true)
	env.body = `[]`

	_, err := env.pipeline().Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrEmptyBatch)

	stage, _ := FailedStage(err)
	assert.Equal(t, StagePrepareRaw, stage)
}

func TestPipeline_ShapeIssuesAreReported(t *testing.T) {
	env := newPipelineEnv(t, true)
	env.body = `[
	  {"id": 1, "price": 5, "category": "a", "image": "x", "rating": {"rate": 1, "count": 1}},
	  {"id": 2, "price": 6, "category": "b", "rating": {"rate": 2, "count": 2}}
	]`

	summary, err := env.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary.ShapeIssues)
	assert.Equal(t, []string{"image"}, summary.ShapeIssues.Missing[1])

	var image sql.NullString
	require.NoError(t, env.db().QueryRow(`SELECT image FROM raw_products WHERE id = 2`).Scan(&image))
	assert.False(t, image.Valid)
}

func TestPipeline_ManifestDisabled(t *testing.T) {
	env := newPipelineEnv(t, true)
	env.cfg.Features.ManifestPath = ""

	summary, err := env.pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.ManifestPath)
}

func TestPipeline_StageOrder(t *testing.T) {
	env := newPipelineEnv(t, true)

	var names []StageName
	for _, s := range env.pipeline().Stages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []StageName{
		StageFetch, StagePrepareRaw, StageStoreRaw, StageTransform,
		StageStoreTransformed, StagePrepareML, StageStoreMLReady,
	}, names)
}

func TestStageError(t *testing.T) {
	cause := &apperrors.PersistenceError{Table: "raw_products", Op: "create", Err: errors.New("disk full")}
	err := error(&StageError{Stage: StageStoreRaw, Err: cause})

	assert.Equal(t, `stage store_raw: create table "raw_products": disk full`, err.Error())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	_, ok := FailedStage(errors.New("plain"))
	assert.False(t, ok)
}
