package store

import (
	"context"
	"os"
	"testing"
	"time"

	"xinfadi_prices/internal/prices"

	"github.com/google/uuid"
)

func TestArchiveRowsKeepOrderAndNulls(t *testing.T) {
	avg := 2.5
	id := uuid.New()
	table := prices.Table{
		{Category: "蔬菜", Name: "白菜", AvgPrice: &avg, PubDate: "2024-01-15"},
		{Category: "水果", Name: "苹果"},
	}

	rows := archiveRows(id, table)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != len(rowColumns) {
		t.Errorf("Expected %d values per row, got %d", len(rowColumns), len(rows[0]))
	}
	if rows[0][0] != id || rows[0][1] != 1 || rows[1][1] != 2 {
		t.Errorf("Unexpected run id or sequence: %v %v", rows[0][:2], rows[1][:2])
	}
	if p, ok := rows[0][6].(*float64); !ok || *p != 2.5 {
		t.Errorf("Expected avg price 2.5, got %v", rows[0][6])
	}
	if p, ok := rows[1][5].(*float64); !ok || p != nil {
		t.Errorf("Expected nil low price, got %v", rows[1][5])
	}
}

func TestSaveRun(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	archive, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer archive.Close()

	run := Run{ID: uuid.New(), StartedAt: time.Now(), StartDate: "2024-01-15", EndDate: "2024-01-15", Pages: 1}
	table := prices.Table{{Category: "蔬菜", Name: "白菜"}, {Category: "蔬菜", Name: "菠菜"}}
	if err := archive.SaveRun(ctx, run, table); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	n, err := archive.RowCount(ctx, run.ID)
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows, got %d", n)
	}
}
