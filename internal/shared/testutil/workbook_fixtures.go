package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook saves rows to a new workbook at path, creating parent
// directories. The default sheet is renamed to sheet when it is not empty.
func WriteWorkbook(t testing.TB, path, sheet string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	name := f.GetSheetName(0)
	if sheet != "" && sheet != name {
		if err := f.SetSheetName(name, sheet); err != nil {
			t.Fatalf("rename sheet: %v", err)
		}
		name = sheet
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow(name, cell, &r); err != nil {
			t.Fatalf("write row %d: %v", i+1, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook %s: %v", path, err)
	}
	return path
}

// VendorRows lays rows out the way the data vendor exports them: the code
// header, a row of descriptive names and a row of units, then the data.
func VendorRows(header []string, data ...[]any) [][]any {
	names := make([]any, len(header))
	units := make([]any, len(header))
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
		names[i] = "名称 " + h
		units[i] = "没有单位"
	}
	rows := [][]any{head, names, units}
	return append(rows, data...)
}
