package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
	"github.com/ekaya-inc/catalog-pipeline/pkg/table"
)

// Column names produced by the transform.
const (
	ColRatingRate  = "rating_rate"
	ColRatingCount = "rating_count"

	CategoryPrefix = "category_"
)

var (
	ErrMissingCategory = errors.New("category is missing")
	ErrUnknownCategory = errors.New("category is not in the configured vocabulary")
	ErrReservedColumn  = errors.New("source column uses a name reserved for derived features")
)

// Transformer derives the analytical table from the raw table.
type Transformer struct {
	vocabulary []string
	logger     *zap.Logger
}

// NewTransformer creates a Transformer. An empty vocabulary makes category
// encoding batch-relative: one indicator per distinct value, sorted.
// A non-empty vocabulary fixes the indicator columns and their order.
func NewTransformer(vocabulary []string, logger *zap.Logger) *Transformer {
	return &Transformer{
		vocabulary: dedupe(vocabulary),
		logger:     logger.Named("transform"),
	}
}

// Transform returns a new table with price coerced to a number, rating split
// into rating_rate and rating_count, and one category_<value> indicator per
// category. The input is not modified. It also returns the categories that
// received an indicator column, in column order.
func (t *Transformer) Transform(raw dataframe.DataFrame) (dataframe.DataFrame, []string, error) {
	for _, col := range []string{models.AttrPrice, models.AttrRating, models.AttrCategory} {
		if !table.Has(raw, col) {
			return dataframe.DataFrame{}, nil, fmt.Errorf("%w: column %q not found", apperrors.ErrTransform, col)
		}
	}

	if err := checkReserved(raw); err != nil {
		return dataframe.DataFrame{}, nil, err
	}

	out := raw.Copy()

	price, coerced := coercePrice(raw.Col(models.AttrPrice))
	if coerced > 0 {
		t.logger.Info("Price values could not be parsed and were set to null",
			zap.Int("count", coerced))
	}
	out, err := table.Mutate(out, price)
	if err != nil {
		return dataframe.DataFrame{}, nil, err
	}

	rate, count, err := splitRatings(raw.Col(models.AttrRating))
	if err != nil {
		return dataframe.DataFrame{}, nil, err
	}
	if out, err = table.Mutate(out, rate); err != nil {
		return dataframe.DataFrame{}, nil, err
	}
	if out, err = table.Mutate(out, count); err != nil {
		return dataframe.DataFrame{}, nil, err
	}
	if out, err = table.Drop(out, models.AttrRating); err != nil {
		return dataframe.DataFrame{}, nil, err
	}

	indicators, categories, err := t.encodeCategories(raw.Col(models.AttrCategory))
	if err != nil {
		return dataframe.DataFrame{}, nil, err
	}
	for _, s := range indicators {
		if out, err = table.Mutate(out, s); err != nil {
			return dataframe.DataFrame{}, nil, err
		}
	}

	t.logger.Debug("Transformed batch",
		zap.Int("rows", out.Nrow()),
		zap.Int("columns", out.Ncol()),
		zap.Strings("categories", categories))

	return out, categories, nil
}

// checkReserved rejects source columns that a derived column would overwrite
// or that feature selection would mistake for a category indicator.
func checkReserved(raw dataframe.DataFrame) error {
	for _, name := range raw.Names() {
		if name == ColRatingRate || name == ColRatingCount ||
			strings.HasPrefix(name, CategoryPrefix) || strings.HasPrefix(name, ScaledPrefix) {
			return fmt.Errorf("%w: %w: %q", apperrors.ErrTransform, ErrReservedColumn, name)
		}
	}
	return nil
}

// coercePrice converts a price column to Float. Text is parsed as a decimal
// after trimming spaces; anything unparseable becomes NA. It returns the
// number of present values that could not be parsed.
func coercePrice(s series.Series) (series.Series, int) {
	vals := make([]any, s.Len())
	failed := 0
	for i := range vals {
		switch v := table.Value(s, i).(type) {
		case nil:
		case float64:
			vals[i] = v
		case int64:
			vals[i] = float64(v)
		case bool:
			if v {
				vals[i] = 1.0
			} else {
				vals[i] = 0.0
			}
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				failed++
				continue
			}
			vals[i] = d.InexactFloat64()
		}
	}
	return table.Floats(models.AttrPrice, vals), failed
}

// splitRatings decodes every rating cell. Any missing or malformed rating
// fails the whole transform.
func splitRatings(s series.Series) (series.Series, series.Series, error) {
	rates := make([]any, s.Len())
	counts := make([]any, s.Len())
	for i := range rates {
		v := table.Value(s, i)
		if v == nil {
			return series.Series{}, series.Series{}, &apperrors.TransformError{
				Row: i, Column: models.AttrRating, Err: models.ErrRatingMissingField,
			}
		}
		r, err := models.DecodeRating(fmt.Sprint(v))
		if err != nil {
			return series.Series{}, series.Series{}, &apperrors.TransformError{
				Row: i, Column: models.AttrRating, Err: err,
			}
		}
		rates[i] = r.Rate
		counts[i] = r.Count
	}
	return table.Floats(ColRatingRate, rates), table.Ints(ColRatingCount, counts), nil
}

// encodeCategories builds 0/1 indicator columns. Every row must have exactly
// one category, so a missing value is an error.
func (t *Transformer) encodeCategories(s series.Series) ([]series.Series, []string, error) {
	values := make([]string, s.Len())
	for i := range values {
		v := table.Value(s, i)
		if v == nil {
			return nil, nil, &apperrors.TransformError{Row: i, Column: models.AttrCategory, Err: ErrMissingCategory}
		}
		values[i] = fmt.Sprint(v)
	}

	categories := t.vocabulary
	if len(categories) == 0 {
		categories = dedupe(values)
		sort.Strings(categories)
	} else {
		known := make(map[string]struct{}, len(categories))
		for _, c := range categories {
			known[c] = struct{}{}
		}
		for i, v := range values {
			if _, ok := known[v]; !ok {
				return nil, nil, &apperrors.TransformError{
					Row: i, Column: models.AttrCategory, Err: fmt.Errorf("%w: %q", ErrUnknownCategory, v),
				}
			}
		}
	}

	indicators := make([]series.Series, len(categories))
	for c, category := range categories {
		flags := make([]any, len(values))
		for i, v := range values {
			if v == category {
				flags[i] = 1
			} else {
				flags[i] = 0
			}
		}
		indicators[c] = table.Ints(CategoryPrefix+category, flags)
	}
	return indicators, categories, nil
}

// dedupe drops repeated values, keeping first occurrences in order.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
