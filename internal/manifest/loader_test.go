package manifest

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"recording-insights-go/internal/types"
)

func writeManifest(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetList()[0]
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("write row %d: %v", i, err)
		}
	}
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, [][]any{
		{"Recording ID", "Audio URL", "Enable Coaching", "Strategy"},
		{"rec-a", "s3://calls/a.wav", "yes", "optimized"},
		{"", "https://calls.s3.amazonaws.com/b.mp3", "no", ""},
		{"rec-c", "not a locator", "true", "fast"},
	})

	entries, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}

	if entries[0].RecordingID != "rec-a" || !entries[0].EnableCoaching {
		t.Fatalf("first entry mismatch: %+v", entries[0])
	}
	if entries[0].Strategy != types.StrategyOptimized {
		t.Fatalf("strategy not parsed: %+v", entries[0])
	}

	// Row without an id is assigned one; empty strategy falls back to standard.
	if entries[1].RecordingID != "manifest-row-2" {
		t.Fatalf("generated id mismatch: %+v", entries[1])
	}
	if entries[1].Strategy != types.StrategyStandard || entries[1].EnableCoaching {
		t.Fatalf("defaults not applied: %+v", entries[1])
	}
}

func TestLoadManifestNoURLColumn(t *testing.T) {
	path := writeManifest(t, [][]any{
		{"ID", "Notes"},
		{"rec-a", "something"},
	})
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for manifest without a URL column")
	}
}

func TestLoadManifestNoDataRows(t *testing.T) {
	path := writeManifest(t, [][]any{
		{"ID", "Audio URL"},
	})
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for manifest with only a header")
	}
}
