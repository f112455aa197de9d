package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/jsonutil"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
	"github.com/ekaya-inc/catalog-pipeline/pkg/table"
)

// RawResult is the storable form of a fetched batch.
type RawResult struct {
	Frame dataframe.DataFrame

	// ShapeIssues lists records that lacked attributes other records had.
	// Their cells are NA; the batch is still usable.
	ShapeIssues *apperrors.ShapeError
}

// PrepareRaw flattens products into one row per record and one column per
// top-level attribute. Columns follow first-seen attribute order across the
// batch. Nested values such as rating are stored as compact JSON text, which
// models.DecodeRating reverses.
func PrepareRaw(products []models.Product) (*RawResult, error) {
	if len(products) == 0 {
		return nil, apperrors.ErrEmptyBatch
	}

	columns := attributeUnion(products)

	missing := make(map[int][]string)
	for i, p := range products {
		for _, col := range columns {
			if _, ok := p.Get(col); !ok {
				missing[i] = append(missing[i], col)
			}
		}
	}

	cols := make([]series.Series, 0, len(columns))
	for _, name := range columns {
		s, err := rawColumn(name, products)
		if err != nil {
			return nil, err
		}
		cols = append(cols, s)
	}

	df, err := table.New(cols...)
	if err != nil {
		return nil, err
	}

	result := &RawResult{Frame: df}
	if len(missing) > 0 {
		result.ShapeIssues = &apperrors.ShapeError{Missing: missing}
	}
	return result, nil
}

// attributeUnion returns every attribute name in the batch, in first-seen order.
func attributeUnion(products []models.Product) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, p := range products {
		for _, k := range p.Keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	return names
}

// rawColumn builds one column, inferring its type from the non-null values:
// all integers → Int, all numbers → Float, all booleans → Bool, else String.
func rawColumn(name string, products []models.Product) (series.Series, error) {
	raws := make([]json.RawMessage, len(products))
	kinds := make(map[jsonutil.Kind]int)
	allIntegers := true

	for i, p := range products {
		raw, ok := p.Get(name)
		if !ok {
			continue
		}
		kind := jsonutil.KindOf(raw)
		if kind == jsonutil.KindNull {
			continue
		}
		raws[i] = raw
		kinds[kind]++
		if kind == jsonutil.KindNumber {
			if _, isInt := jsonutil.Integer(raw); !isInt {
				allIntegers = false
			}
		}
	}

	vals := make([]any, len(products))
	onlyKind := func(k jsonutil.Kind) bool { return len(kinds) == 1 && kinds[k] > 0 }

	switch {
	case onlyKind(jsonutil.KindNumber) && allIntegers:
		for i, raw := range raws {
			if raw != nil {
				v, _ := jsonutil.Integer(raw)
				vals[i] = v
			}
		}
		return table.Ints(name, vals), nil

	case onlyKind(jsonutil.KindNumber):
		for i, raw := range raws {
			if raw != nil {
				v, _ := jsonutil.Number(raw)
				vals[i] = v
			}
		}
		return table.Floats(name, vals), nil

	case onlyKind(jsonutil.KindBool):
		for i, raw := range raws {
			if raw != nil {
				vals[i] = jsonutil.FlexibleStringValue(raw) == "true"
			}
		}
		return series.New(vals, series.Bool, name), nil
	}

	for i, raw := range raws {
		if raw == nil {
			continue
		}
		text, err := rawText(raw)
		if err != nil {
			return series.Series{}, fmt.Errorf("serialize %s of record %d: %w", name, i, err)
		}
		vals[i] = text
	}
	return table.Strings(name, vals), nil
}

// rawText renders a value as text. Objects and arrays become compact JSON
// with their key order and number literals intact.
func rawText(raw json.RawMessage) (string, error) {
	switch jsonutil.KindOf(raw) {
	case jsonutil.KindObject, jsonutil.KindArray:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return jsonutil.FlexibleStringValue(raw), nil
	}
}
