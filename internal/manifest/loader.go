package manifest

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"recording-insights-go/internal/types"
)

// Entry is one manifest row: a recording to register and process.
type Entry struct {
	RecordingID    string
	FileURL        string
	EnableCoaching bool
	Strategy       types.Strategy
}

// Load reads a batch manifest workbook. Columns are detected by header
// heuristics: recording id, file URL, coaching flag, and an optional
// strategy column. Rows without a usable file URL are skipped quietly.
func Load(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("manifest has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read manifest rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("manifest has no data rows")
	}

	idIdx, urlIdx, coachIdx, stratIdx := detectColumns(rows[0])
	if urlIdx == -1 {
		return nil, fmt.Errorf("manifest has no file URL column")
	}

	var out []Entry
	for i, row := range rows {
		if i == 0 {
			continue
		}
		entry := Entry{Strategy: types.StrategyStandard}
		if idIdx >= 0 && idIdx < len(row) {
			entry.RecordingID = strings.TrimSpace(row[idIdx])
		}
		if urlIdx < len(row) {
			entry.FileURL = strings.TrimSpace(row[urlIdx])
		}
		if coachIdx >= 0 && coachIdx < len(row) {
			entry.EnableCoaching = parseBool(row[coachIdx])
		}
		if stratIdx >= 0 && stratIdx < len(row) {
			if s := strings.TrimSpace(strings.ToLower(row[stratIdx])); s != "" {
				entry.Strategy = types.Strategy(s)
			}
		}
		if !looksLikeLocator(entry.FileURL) {
			continue
		}
		if entry.RecordingID == "" {
			entry.RecordingID = fmt.Sprintf("manifest-row-%d", i)
		}
		out = append(out, entry)
	}
	return out, nil
}

func detectColumns(header []string) (idIdx, urlIdx, coachIdx, stratIdx int) {
	idIdx, urlIdx, coachIdx, stratIdx = -1, -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "url") || strings.Contains(l, "audio") || strings.Contains(l, "record") && strings.Contains(l, "link"):
			if urlIdx == -1 {
				urlIdx = i
			}
		case strings.Contains(l, "coach"):
			if coachIdx == -1 {
				coachIdx = i
			}
		case strings.Contains(l, "strateg"):
			if stratIdx == -1 {
				stratIdx = i
			}
		case strings.Contains(l, "id"):
			if idIdx == -1 {
				idIdx = i
			}
		}
	}
	return
}

func looksLikeLocator(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "s3://") ||
		strings.HasPrefix(l, "http://") ||
		strings.HasPrefix(l, "https://") ||
		strings.Count(s, "/") >= 1 && !strings.ContainsAny(s, " \t")
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}
