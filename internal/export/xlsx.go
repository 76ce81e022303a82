package export

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gis-compliance/internal/model"
)

// Sheet names used in workbooks.
const (
	SummarySheet = "Summary"
	RegionsSheet = "Non-Compliant Regions"
	AreasSheet   = "Areas"
)

var regionHeader = []string{"name", "area_sqmi", "required_sqmi", "shortfall_sqmi", "recommendation", "is_compliant"}

// WriteXLSX saves report as a workbook with a summary sheet and a sheet of
// non-compliant regions in report order.
func WriteXLSX(path string, report *model.ComplianceReport) error {
	if report == nil {
		return eris.New("export: nil report")
	}
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	if report.Failed() {
		addStringRow(summary, "error", report.Error)
		return eris.Wrap(f.Save(path), "xlsx: save")
	}
	addStringRow(summary, "report_type", report.Meta.ReportType)
	addStringRow(summary, "source_file", report.Meta.SourceFile)
	addStringRow(summary, "rule", report.Meta.Rule)
	addIntRow(summary, "total_features_checked", report.Statistics.TotalFeaturesChecked)
	addIntRow(summary, "non_compliant_count", report.Statistics.NonCompliantCount)

	regions, err := f.AddSheet(RegionsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add regions sheet")
	}
	addHeader(regions, regionHeader)
	for _, r := range report.NonCompliantRegions {
		row := regions.AddRow()
		row.AddCell().SetString(r.Name)
		row.AddCell().SetFloat(r.AreaSqMi)
		row.AddCell().SetFloat(r.RequiredSqMi)
		row.AddCell().SetFloat(r.ShortfallSqMi)
		row.AddCell().SetString(r.Recommendation)
		row.AddCell().SetBool(r.IsCompliant)
	}

	return eris.Wrap(f.Save(path), "xlsx: save")
}

// WriteAreasXLSX saves measured areas as a two-column name/area_sqmi sheet.
func WriteAreasXLSX(path string, records model.RegionAreaRecords) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(AreasSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add areas sheet")
	}
	addHeader(sheet, []string{"name", "area_sqmi"})
	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Name)
		row.AddCell().SetFloat(r.AreaSqMi)
	}
	return eris.Wrap(f.Save(path), "xlsx: save")
}

// ReadAreasXLSX reads name/area_sqmi rows from the first sheet of a
// workbook. The first row is a header; columns are located by name.
func ReadAreasXLSX(path string) (model.RegionAreaRecords, error) {
	rows, err := ReadXLSX(path, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return model.RegionAreaRecords{}, nil
	}

	nameCol, areaCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "area_sqmi":
			areaCol = i
		}
	}
	if nameCol < 0 || areaCol < 0 {
		return nil, eris.Errorf("xlsx: %s needs name and area_sqmi columns, got %v", path, rows[0])
	}

	records := make(model.RegionAreaRecords, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) <= areaCol || len(row) <= nameCol {
			continue
		}
		raw := strings.TrimSpace(row[areaCol])
		if raw == "" {
			continue
		}
		area, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d area_sqmi", i+2)
		}
		if area < 0 {
			return nil, eris.Errorf("xlsx: row %d has negative area %v", i+2, area)
		}
		records = append(records, model.RegionAreaRecord{Name: row[nameCol], AreaSqMi: area})
	}
	return records, nil
}

// ReadXLSX returns the rows of the sheet at index as strings.
func ReadXLSX(path string, index int) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if index < 0 || index >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", index, len(f.Sheets))
	}

	var rows [][]string
	for _, row := range f.Sheets[index].Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// SheetRows returns the rows of the named sheet as strings.
func SheetRows(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	var rows [][]string
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

func addStringRow(sheet *xlsx.Sheet, key, val string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(val)
}

func addIntRow(sheet *xlsx.Sheet, key string, val int) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetInt(val)
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
