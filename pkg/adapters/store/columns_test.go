package store

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-gota/gota/series"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/table"
)

// numberedDialect renders $n placeholders and a small parameter limit.
type numberedDialect struct{ max int }

func (numberedDialect) Name() string { return "numbered" }
func (numberedDialect) Open(config.StoreConfig) (*sql.DB, error) { return nil, nil }
func (numberedDialect) MigrationDriver(*sql.DB) (migratedb.Driver, error) { return nil, nil }
func (numberedDialect) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (numberedDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (numberedDialect) ColumnType(k ColumnKind) string { return k.String() }
func (d numberedDialect) MaxParams() int { return d.max }
func (numberedDialect) TransactionalDDL() bool { return true }

func TestDescribeColumns(t *testing.T) {
	df, err := table.New(
		table.Ints("id", []any{int64(1)}),
		table.Strings("title", []any{"Backpack"}),
		table.Floats("price", []any{109.95}),
		series.New([]bool{true}, series.Bool, "in_stock"),
	)
	require.NoError(t, err)

	assert.Equal(t, []Column{
		{Name: "id", Kind: KindInteger},
		{Name: "title", Kind: KindText},
		{Name: "price", Kind: KindReal},
		{Name: "in_stock", Kind: KindBoolean},
	}, DescribeColumns(df))
}

func TestCreateTableSQL(t *testing.T) {
	cols := []Column{{Name: "id", Kind: KindInteger}, {Name: "price", Kind: KindReal}}
	got := createTableSQL(numberedDialect{max: 100}, "raw_products", cols)
	assert.Equal(t, `CREATE TABLE "raw_products" ("id" integer, "price" real)`, got)
}

func TestInsertSQL_NumbersPlaceholdersAcrossRows(t *testing.T) {
	cols := []Column{{Name: "a"}, {Name: "b"}}
	got := insertSQL(numberedDialect{max: 100}, "t", cols, 2)
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES ($1, $2), ($3, $4)`, got)
}

func TestRowsPerBatch(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		batchSize int
		ncols     int
		want      int
	}{
		{"batch size wins", 1000, 10, 5, 10},
		{"parameter limit wins", 100, 200, 10, 10},
		{"more columns than parameters", 5, 200, 10, 1},
		{"no columns", 100, 50, 0, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rowsPerBatch(numberedDialect{max: tt.max}, tt.batchSize, tt.ncols))
		})
	}
}

func TestScreenIdentifiers(t *testing.T) {
	findings := ScreenIdentifiers("category_electronics", "1' OR '1'='1", "scaled_price")
	require.Len(t, findings, 1)
	assert.Equal(t, "1' OR '1'='1", findings[0].Identifier)
	assert.NotEmpty(t, findings[0].Fingerprint)
}

func TestColumnKind_String(t *testing.T) {
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "integer", KindInteger.String())
	assert.Equal(t, "real", KindReal.String())
	assert.Equal(t, "boolean", KindBoolean.String())
}
