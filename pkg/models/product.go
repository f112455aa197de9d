// Package models contains domain types for the catalog pipeline.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ekaya-inc/catalog-pipeline/pkg/jsonutil"
)

// Product attribute names the pipeline treats specially.
const (
	AttrID       = "id"
	AttrPrice    = "price"
	AttrCategory = "category"
	AttrRating   = "rating"
)

// Product is one record from the source collection. Attribute values are kept
// as received so malformed fields (a non-numeric price, say) survive until the
// stage that decides how to treat them.
type Product struct {
	// Keys lists attribute names in source document order.
	Keys   []string
	Fields map[string]json.RawMessage
}

// UnmarshalJSON decodes a JSON object, remembering attribute order.
func (p *Product) UnmarshalJSON(data []byte) error {
	keys, err := jsonutil.ObjectKeys(data)
	if err != nil {
		return err
	}
	fields := make(map[string]json.RawMessage, len(keys))
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	p.Keys = keys
	p.Fields = fields
	return nil
}

// MarshalJSON encodes the product with its attributes in source order.
func (p Product) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		value := p.Fields[key]
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value of an attribute and whether it was present.
func (p Product) Get(attr string) (json.RawMessage, bool) {
	v, ok := p.Fields[attr]
	return v, ok
}

// Rating is the nested rating attribute of a product.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int64   `json:"count"`
}

var (
	ErrRatingMissingField = errors.New("rating field missing")
	ErrRatingNotNumber    = errors.New("rating field is not a number")
)

// EncodeRating serializes a rating to its storable text form.
func EncodeRating(r Rating) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeRating parses the text form of a rating. Both rate and count must be
// present JSON numbers and count must be integral; extra attributes are ignored.
func DecodeRating(text string) (Rating, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return Rating{}, fmt.Errorf("decode rating: %w", err)
	}
	if fields == nil {
		return Rating{}, fmt.Errorf("decode rating: %w", ErrRatingMissingField)
	}

	rateRaw, ok := fields["rate"]
	if !ok {
		return Rating{}, fmt.Errorf("rate: %w", ErrRatingMissingField)
	}
	rate, ok := jsonutil.Number(rateRaw)
	if !ok {
		return Rating{}, fmt.Errorf("rate %s: %w", rateRaw, ErrRatingNotNumber)
	}

	countRaw, ok := fields["count"]
	if !ok {
		return Rating{}, fmt.Errorf("count: %w", ErrRatingMissingField)
	}
	count, ok := jsonutil.Integer(countRaw)
	if !ok {
		// Accept integral floats such as 120.0
		f, isNum := jsonutil.Number(countRaw)
		if !isNum || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return Rating{}, fmt.Errorf("count %s: %w", countRaw, ErrRatingNotNumber)
		}
		count = int64(f)
	}

	return Rating{Rate: rate, Count: count}, nil
}
