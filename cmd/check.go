package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/gis-compliance/internal/compliance"
	"github.com/sells-group/gis-compliance/internal/export"
	"github.com/sells-group/gis-compliance/internal/model"
)

var (
	checkThreshold float64
	checkEPSG      int
	checkFormat    string
	checkOut       string
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Evaluate a local feature file against the minimum area",
	Long: `Measures every feature in a GeoJSON FeatureCollection (.geojson, .json) or
shapefile (.shp) and reports the regions below the threshold. An .xlsx file is
read as an area table with name and area_sqmi columns. A missing file yields an
error report rather than a failed command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}
		threshold := checkThreshold
		if threshold <= 0 {
			threshold = cfg.Compliance.ThresholdSqMi
		}

		report, err := checkPath(args[0], threshold, checkEPSG)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report, checkFormat, checkOut)
	},
}

func checkPath(path string, threshold float64, epsg int) (*model.ComplianceReport, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err := export.ReadAreasXLSX(path)
		if err != nil {
			return model.ErrorReport(err.Error()), nil
		}
		return compliance.Evaluate(records, threshold, compliance.WithSource(path)), nil
	}

	p, err := initProjector(epsg)
	if err != nil {
		return nil, err
	}
	return compliance.CheckFile(path, threshold, p)
}

func addReportFlags(cmd *cobra.Command, threshold *float64, epsg *int, format, out *string) {
	cmd.Flags().Float64Var(threshold, "threshold", 0, "minimum area in square miles (default from config)")
	cmd.Flags().IntVar(epsg, "epsg", 0, "equal-area EPSG code: 3083 or 5070 (default from config)")
	cmd.Flags().StringVar(format, "format", "json", "output format: json, yaml or xlsx")
	cmd.Flags().StringVar(out, "out", "", "output file (default stdout)")
}

func init() {
	addReportFlags(checkCmd, &checkThreshold, &checkEPSG, &checkFormat, &checkOut)
	rootCmd.AddCommand(checkCmd)
}
