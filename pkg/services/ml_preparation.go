package services

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
	"github.com/ekaya-inc/catalog-pipeline/pkg/table"
)

// ScaledPrefix names the standardized copy of a feature.
const ScaledPrefix = "scaled_"

// zeroVarianceTolerance treats a standard deviation this small as zero.
const zeroVarianceTolerance = 10 * 2.220446049250313e-16

// NumericFeatures are always part of the feature set, ahead of the category indicators.
var NumericFeatures = []string{models.AttrPrice, ColRatingRate, ColRatingCount}

// MLPreparer imputes and standardizes the feature columns of the transformed table.
type MLPreparer struct {
	policy string
	logger *zap.Logger
}

// NewMLPreparer creates an MLPreparer with a zero-variance policy
// (config.ZeroVarianceZero, ZeroVarianceSkip or ZeroVarianceFail).
func NewMLPreparer(policy string, logger *zap.Logger) *MLPreparer {
	if policy == "" {
		policy = config.ZeroVarianceZero
	}
	return &MLPreparer{
		policy: policy,
		logger: logger.Named("ml"),
	}
}

// Prepare appends a scaled_<feature> column for price, rating_rate,
// rating_count and every category_* column. Missing values are replaced by the
// batch mean, then each feature is shifted by its mean and divided by its
// population standard deviation. Original columns are unchanged.
func (p *MLPreparer) Prepare(df dataframe.DataFrame) (dataframe.DataFrame, *models.FeatureManifest, error) {
	features := append(append([]string{}, NumericFeatures...), table.WithPrefix(df, CategoryPrefix)...)

	manifest := &models.FeatureManifest{
		Rows:               df.Nrow(),
		ZeroVariancePolicy: p.policy,
	}

	out := df.Copy()
	for _, name := range features {
		if !table.Has(df, name) {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: feature column %q not found", apperrors.ErrTransform, name)
		}

		values, err := featureValues(df.Col(name))
		if err != nil {
			return dataframe.DataFrame{}, nil, err
		}

		scaled, stats, err := p.scale(name, values)
		if err != nil {
			return dataframe.DataFrame{}, nil, err
		}
		manifest.Features = append(manifest.Features, stats)

		if out, err = table.Mutate(out, table.Floats(stats.ScaledName, scaled)); err != nil {
			return dataframe.DataFrame{}, nil, err
		}
	}

	return out, manifest, nil
}

// scale imputes and standardizes one feature.
func (p *MLPreparer) scale(name string, values []*float64) ([]any, models.FeatureStats, error) {
	stats := models.FeatureStats{Name: name, ScaledName: ScaledPrefix + name}

	var sum float64
	observed := 0
	for _, v := range values {
		if v != nil {
			sum += *v
			observed++
		}
	}

	// A feature with no observed values has nothing to average; impute 0.
	fill := 0.0
	if observed > 0 {
		fill = sum / float64(observed)
	}
	stats.Imputed = len(values) - observed

	imputed := make([]float64, len(values))
	for i, v := range values {
		if v != nil {
			imputed[i] = *v
		} else {
			imputed[i] = fill
		}
	}

	mean, std := meanStd(imputed)
	stats.Mean = mean
	stats.Std = std

	scaled := make([]any, len(imputed))
	if std < zeroVarianceTolerance {
		stats.Degenerate = true
		switch p.policy {
		case config.ZeroVarianceFail:
			return nil, stats, &apperrors.DegenerateFeatureError{Feature: name, Mean: mean}
		case config.ZeroVarianceSkip:
			for i, v := range imputed {
				scaled[i] = v
			}
		default:
			for i := range imputed {
				scaled[i] = 0.0
			}
		}
		p.logger.Warn("Feature has zero variance",
			zap.String("feature", name),
			zap.Float64("mean", mean),
			zap.String("policy", p.policy))
		return scaled, stats, nil
	}

	for i, v := range imputed {
		scaled[i] = (v - mean) / std
	}
	return scaled, stats, nil
}

// featureValues reads a numeric column; nil entries are missing.
func featureValues(s series.Series) ([]*float64, error) {
	out := make([]*float64, s.Len())
	for i := range out {
		var f float64
		switch v := table.Value(s, i).(type) {
		case nil:
			continue
		case float64:
			f = v
		case int64:
			f = float64(v)
		case bool:
			if v {
				f = 1
			}
		default:
			return nil, &apperrors.TransformError{Row: i, Column: s.Name, Err: fmt.Errorf("feature value %q is not numeric", v)}
		}
		out[i] = &f
	}
	return out, nil
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
