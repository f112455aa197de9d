//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestGetTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)

	var one int
	if err := testDB.Pool.QueryRow(context.Background(), "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("failed to query test database: %v", err)
	}
	if one != 1 {
		t.Errorf("expected 1, got %d", one)
	}
}
