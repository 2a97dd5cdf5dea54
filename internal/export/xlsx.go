// Package export writes logged cases to spreadsheets for manual review.
package export

import (
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/veracity/internal/model"
)

// CriticalCasesSheet is the sheet name used by CriticalCasesXLSX.
const CriticalCasesSheet = "critical_cases"

var criticalCasesHeader = []string{"timestamp", "prediction", "confidence", "text", "reviewed_label"}

// CriticalCasesXLSX writes every case in cases to a new workbook at path and
// returns how many rows were written. The reviewed_label column is left
// blank for reviewers.
func CriticalCasesXLSX(cases iter.Seq2[model.CriticalCase, error], path string) (int, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(CriticalCasesSheet)
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, criticalCasesHeader...)

	n := 0
	for c, err := range cases {
		if err != nil {
			return n, eris.Wrap(err, "export: read critical cases")
		}
		row := sheet.AddRow()
		row.AddCell().SetString(c.Timestamp.UTC().Format(time.RFC3339))
		row.AddCell().SetString(string(c.Prediction))
		row.AddCell().SetFloatWithFormat(c.Confidence, "0.0000")
		row.AddCell().SetString(c.Text)
		row.AddCell().SetString("")
		n++
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return n, eris.Wrapf(err, "export: create dir %s", dir)
		}
	}
	if err := f.Save(path); err != nil {
		return n, eris.Wrapf(err, "export: save %s", path)
	}
	return n, nil
}

// ReadReviewedLabels reads back a workbook written by CriticalCasesXLSX and
// returns the reviewer labels keyed by row text. Blank labels are skipped.
func ReadReviewedLabels(path string) (map[string]model.Label, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	sheet, ok := f.Sheet[CriticalCasesSheet]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", CriticalCasesSheet)
	}

	labels := make(map[string]model.Label)
	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) < len(criticalCasesHeader) {
			continue
		}
		raw := row.Cells[4].String()
		if raw == "" {
			continue
		}
		label, err := model.ParseLabel(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %s", strconv.Itoa(i+1))
		}
		labels[row.Cells[3].String()] = label
	}
	return labels, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
