package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/export"
	"github.com/sells-group/gis-compliance/internal/model"
)

// writeReport renders report in format to out, or to stdout when out is
// empty. XLSX needs a file path.
func writeReport(stdout io.Writer, report *model.ComplianceReport, formatName, out string) error {
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	if format == export.FormatXLSX {
		if out == "" {
			return eris.New("--out is required for xlsx output")
		}
		if err := export.WriteXLSX(out, report); err != nil {
			return err
		}
		zap.L().Info("report written", zap.String("path", out))
		return nil
	}

	if out == "" {
		return export.Write(stdout, report, format)
	}

	f, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "create %s", out)
	}
	if err := export.Write(f, report, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", out)
	}
	zap.L().Info("report written", zap.String("path", out), zap.String("format", string(format)))
	return nil
}

// writeJSONTo writes v as indented JSON to out, or to stdout when out is
// empty.
func writeJSONTo(stdout io.Writer, v any, out string) error {
	if out == "" {
		return export.WriteJSON(stdout, v)
	}
	f, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "create %s", out)
	}
	if err := export.WriteJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", out)
}
