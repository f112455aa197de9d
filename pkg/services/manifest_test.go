package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
)

func TestWriteManifest_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feature_manifest.yaml")
	m := &models.FeatureManifest{
		RunID:              "b7f3c1c2-0000-4000-8000-000000000001",
		GeneratedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Table:              "ml_ready_products",
		Rows:               3,
		ZeroVariancePolicy: "zero",
		Categories:         []string{"electronics", "jewelry"},
		Features: []models.FeatureStats{
			{Name: "price", ScaledName: "scaled_price", Mean: 22.495, Std: 2.505, Imputed: 1},
		},
	}

	require.NoError(t, WriteManifest(path, m))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scaled_name: scaled_price")
}

func TestWriteManifest_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feature_manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, WriteManifest(path, &models.FeatureManifest{Rows: 7}))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Rows)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestWriteManifest_MissingDirectory(t *testing.T) {
	err := WriteManifest(filepath.Join(t.TempDir(), "missing", "m.yaml"), &models.FeatureManifest{})
	assert.Error(t, err)
}

func TestReadManifest_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features: [unterminated"), 0o644))

	_, err := ReadManifest(path)
	assert.Error(t, err)
}
